package matching

import (
	"context"
	"fmt"
	"log"

	"payables/internal/domain"
	"payables/internal/port"
)

// operatorMarker stamps every header this system creates, so automated
// records are distinguishable from hand-entered ones.
const operatorMarker = "AP-AUTOMATION"

// receiptDetailFields are the receipt-side fields copied onto a detail
// when its match_object index resolves. Each is written only if present
// on the receipt; absent fields are omitted, never written as null.
var receiptDetailFields = []string{
	domain.FieldItemNumber,
	domain.FieldItemDescription,
	domain.FieldPOLineNumber,
	domain.FieldReleaseNumber,
	domain.FieldVendorShipNumber,
	domain.FieldDateReceived,
	domain.FieldQuantityReceived,
	domain.FieldQuantityAccepted,
	domain.FieldPurchasePrice,
	domain.FieldExpenseAccount,
	domain.FieldExpenseSubAccount,
	domain.FieldStandardCost,
	domain.FieldSurcharge,
	domain.FieldUnitOfMeasure,
	domain.FieldJobNumber,
}

// MaterializeResult reports the records a Materialize run created.
// Details carries the persisted field maps so the caller can recompute
// the invoice balance without re-fetching.
type MaterializeResult struct {
	HeaderIDs []string
	DetailIDs []string
	Details   []map[string]any
}

// Materializer turns a match response plus the original candidate payload
// into persisted header and detail records.
type Materializer struct {
	store port.RecordStore
}

// NewMaterializer creates a Materializer over the record store.
func NewMaterializer(store port.RecordStore) *Materializer {
	return &Materializer{store: store}
}

// Materialize creates one header record per response header, in array
// order, and that header's details afterward in one batch. A failure
// aborts remaining headers but leaves prior headers in place; the partial
// result is returned alongside the error so the caller can link what was
// created.
func (m *Materializer) Materialize(ctx context.Context, invoiceID string, resp *MatchResponse, payload *domain.MatchPayload) (*MaterializeResult, error) {
	result := &MaterializeResult{}

	for hi := 0; hi < len(resp.Headers); hi++ {
		header := resp.Headers[hi]

		headerFields := m.buildHeaderFields(invoiceID, header, payload)
		created, err := m.store.Create(ctx, domain.TableHeaders, []map[string]any{headerFields})
		if err != nil {
			return result, fmt.Errorf("creating header %d: %w", hi, err)
		}
		headerID := created[0].ID
		result.HeaderIDs = append(result.HeaderIDs, headerID)

		// Flattening order is invoice line order, then match order within
		// the line.
		var detailFields []map[string]any
		for line := 0; line < len(header.Details); line++ {
			for mi := 0; mi < len(header.Details[line]); mi++ {
				detailFields = append(detailFields, m.buildDetailFields(headerID, header.Details[line][mi], payload))
			}
		}
		if len(detailFields) == 0 {
			continue
		}

		createdDetails, err := m.store.Create(ctx, domain.TableDetails, detailFields)
		if err != nil {
			return result, fmt.Errorf("creating details for header %s: %w", headerID, err)
		}
		for i, rec := range createdDetails {
			result.DetailIDs = append(result.DetailIDs, rec.ID)
			result.Details = append(result.Details, detailFields[i])
		}
	}

	return result, nil
}

// buildHeaderFields assembles a header from the payload's vendor block
// plus the response's PO number, restricted to the writable whitelist.
// CuryMultDiv and any other non-whitelisted vendor fields are dropped
// here.
func (m *Materializer) buildHeaderFields(invoiceID string, header MatchHeader, payload *domain.MatchPayload) map[string]any {
	fields := domain.FilterWritable(payload.Vendor, domain.HeaderWritableFields)
	fields[domain.FieldHeaderInvoice] = []string{invoiceID}
	fields[domain.FieldOperator] = operatorMarker
	if header.PONumber != "" {
		fields[domain.FieldPONumber] = header.PONumber
	}
	if receipt := firstResolvedReceipt(header, payload); receipt != nil {
		if v, ok := receipt[domain.FieldJobNumber]; ok && v != nil {
			fields[domain.FieldJobNumber] = v
		}
	}
	return fields
}

// buildDetailFields assembles one detail: invoice-side pricing always,
// receipt-side fields only when the index resolves, vendor PPV accounts
// injected when present.
func (m *Materializer) buildDetailFields(headerID string, mo MatchObject, payload *domain.MatchPayload) map[string]any {
	fields := map[string]any{
		domain.FieldDetailHeader:     []string{headerID},
		domain.FieldInvoicePrice:     mo.InvoicePrice,
		domain.FieldQuantityInvoiced: mo.InvoiceQuantity,
		domain.FieldLineAmount:       mo.InvoiceAmount,
	}

	if mo.MatchObject >= 0 && mo.MatchObject < len(payload.Receipts) {
		receipt := payload.Receipts[mo.MatchObject]
		for _, key := range receiptDetailFields {
			if v, ok := receipt[key]; ok && v != nil {
				fields[key] = v
			}
		}
	} else {
		log.Printf("matching.Materialize: match_object %d out of range (%d candidates), creating detail with invoice-side fields only",
			mo.MatchObject, len(payload.Receipts))
	}

	if v, ok := payload.Vendor[domain.FieldPPVAccount]; ok && v != nil {
		fields[domain.FieldPPVAccount] = v
	}
	if v, ok := payload.Vendor[domain.FieldPPVSubAccount]; ok && v != nil {
		fields[domain.FieldPPVSubAccount] = v
	}

	return domain.FilterWritable(fields, domain.DetailWritableFields)
}

func firstResolvedReceipt(header MatchHeader, payload *domain.MatchPayload) map[string]any {
	for _, line := range header.Details {
		for _, mo := range line {
			if mo.MatchObject >= 0 && mo.MatchObject < len(payload.Receipts) {
				return payload.Receipts[mo.MatchObject]
			}
		}
	}
	return nil
}
