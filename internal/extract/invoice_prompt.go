package extract

import "encoding/json"

// BuildInvoiceFieldPrompt returns the prompt for pulling invoice header
// fields out of a document's OCR text. A single document may carry more
// than one invoice.
func BuildInvoiceFieldPrompt(ocrText string) string {
	return `You are an accounts-payable data extraction assistant. The text below was produced by OCR over a vendor invoice document. The document may contain one or more invoices.

INSTRUCTIONS:
- Extract EVERY invoice present in the document. Do not skip or merge invoices.
- Normalize all dates to YYYY-MM-DD format. Strip timestamps and annotations.
- Amounts are plain numbers with no currency symbols or thousands separators.
- invoice_amount is the invoice grand total. freight_amount, misc_amount and surcharge_amount are the corresponding charge lines; use 0 when a charge line is not present.
- vendor_name is the issuing vendor's name exactly as printed.

OCR TEXT:
` + ocrText
}

// InvoiceFieldSchema returns the JSON schema the field-extraction call
// must conform to.
func InvoiceFieldSchema() json.RawMessage {
	return json.RawMessage(invoiceFieldSchemaJSON)
}

// InvoiceFieldSchemaName names the schema for the provider request.
const InvoiceFieldSchemaName = "invoice_fields_v1"

const invoiceFieldSchemaJSON = `{
  "type": "object",
  "properties": {
    "invoices": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "vendor_name": {"type": "string"},
          "invoice_number": {"type": "string"},
          "invoice_date": {"type": "string"},
          "invoice_amount": {"type": "number"},
          "freight_amount": {"type": "number"},
          "misc_amount": {"type": "number"},
          "surcharge_amount": {"type": "number"}
        },
        "required": ["vendor_name", "invoice_number", "invoice_date", "invoice_amount", "freight_amount", "misc_amount", "surcharge_amount"],
        "additionalProperties": false
      }
    }
  },
  "required": ["invoices"],
  "additionalProperties": false
}`
