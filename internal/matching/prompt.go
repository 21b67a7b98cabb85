package matching

import (
	"encoding/json"
	"fmt"
	"strings"

	"payables/internal/domain"
)

// MatchSchemaName versions the response schema sent to the provider.
const MatchSchemaName = "po_match_v1"

// MatchSchema returns the fixed JSON schema for the matching response.
func MatchSchema() json.RawMessage {
	return json.RawMessage(matchSchemaJSON)
}

const matchSchemaJSON = `{
  "type": "object",
  "properties": {
    "headers": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "po_number": {"type": "string"},
          "details": {
            "type": "array",
            "items": {
              "type": "array",
              "items": {
                "type": "object",
                "properties": {
                  "match_object": {"type": "integer"},
                  "invoice_price": {"type": "number"},
                  "invoice_quantity": {"type": "number"},
                  "invoice_amount": {"type": "number"}
                },
                "required": ["match_object", "invoice_price", "invoice_quantity", "invoice_amount"],
                "additionalProperties": false
              }
            }
          }
        },
        "required": ["po_number", "details"],
        "additionalProperties": false
      }
    },
    "error": {"type": "string"}
  },
  "required": ["headers", "error"],
  "additionalProperties": false
}`

// BuildMatchPrompt produces the matching instructions for one invoice.
// The prompt is deterministic for fixed inputs; the receipt candidates
// are numbered so the response can reference them by index.
func BuildMatchPrompt(inv *domain.Invoice, payload *domain.MatchPayload) string {
	var b strings.Builder

	b.WriteString(`You are an accounts-payable reconciliation assistant. Match the lines of the invoice below to the purchase-order receipt candidates, grouping matches by PO number into headers.

MATCHING RULES:
- The primary key for a candidate match is exact item-number equality. Treat hyphen and space formatting differences as equal (e.g., "AB-123" matches "AB 123" and "AB123").
- When the item number alone is ambiguous, use item description similarity as a secondary signal.
- Quantity and pricing must be numerically close between the invoice line and the receipt.
- The invoice's document date must precede the receipt's date-received. A receipt dated before the invoice is NOT a valid match; disqualify it rather than matching it.
- Match exactly one receipt per invoice line. Never split one invoice line across multiple receipts.
- If an invoice line has no valid receipt, leave its inner details array empty and append a concise note about the line to the "error" field. Do not abort the rest of the invoice; partial success is the expected outcome.

RESPONSE SHAPE:
- Return one header per matched PO number.
- Each header's "details" holds one inner array per invoice line, in invoice line order. Each match object's "match_object" is the zero-based index of the chosen receipt in the RECEIPT CANDIDATES list below.
- "invoice_price", "invoice_quantity" and "invoice_amount" are the values printed on the invoice line, not the receipt's.
- Leave "error" as an empty string when every line matched.

INVOICE:
`)
	b.WriteString(encodeJSON(invoiceFields(inv)))

	b.WriteString("\n\nVENDOR:\n")
	if len(payload.Vendor) > 0 {
		b.WriteString(encodeJSON(payload.Vendor))
	} else {
		b.WriteString("(none)")
	}

	b.WriteString("\n\nRECEIPT CANDIDATES:\n")
	if len(payload.Receipts) == 0 {
		b.WriteString("(none)")
	} else {
		for i, receipt := range payload.Receipts {
			b.WriteString(fmt.Sprintf("[%d] %s\n", i, encodeJSON(receipt)))
		}
	}

	return b.String()
}

// invoiceFields renders the invoice's non-empty fields under their wire
// names, with the match payload itself excluded.
func invoiceFields(inv *domain.Invoice) map[string]any {
	fields := map[string]any{
		domain.FieldInvoiceAmount: inv.InvoiceAmount,
	}
	if inv.VendorName != "" {
		fields[domain.FieldVendorName] = inv.VendorName
	}
	if inv.VendorID != "" {
		fields[domain.FieldVendorID] = inv.VendorID
	}
	if inv.InvoiceNumber != "" {
		fields[domain.FieldInvoiceNumber] = inv.InvoiceNumber
	}
	if inv.InvoiceDate != "" {
		fields[domain.FieldInvoiceDate] = inv.InvoiceDate
	}
	if inv.FreightAmount != 0 {
		fields[domain.FieldFreightAmount] = inv.FreightAmount
	}
	if inv.MiscAmount != 0 {
		fields[domain.FieldMiscAmount] = inv.MiscAmount
	}
	if inv.SurchargeAmount != 0 {
		fields[domain.FieldSurchargeAmount] = inv.SurchargeAmount
	}
	return fields
}

func encodeJSON(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
