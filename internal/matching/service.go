package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"payables/internal/domain"
	"payables/internal/extract"
	"payables/internal/port"
)

// Service matches one invoice against its PO receipt candidates and
// persists the resulting header/detail records.
type Service interface {
	MatchInvoice(ctx context.Context, invoiceID string) error
}

type service struct {
	store        port.RecordStore
	extractor    port.StructuredExtractor
	materializer *Materializer
}

// NewService creates the matching service.
func NewService(store port.RecordStore, extractor port.StructuredExtractor) Service {
	return &service{
		store:        store,
		extractor:    extractor,
		materializer: NewMaterializer(store),
	}
}

// MatchInvoice runs the full match step for one invoice: dedupe check,
// prompt build, structured extraction, materialization, then balance and
// warning computation. Mutations are idempotent upserts; a settled
// invoice that already has linked headers is skipped so duplicate
// delivery cannot create duplicate records, while a retried Pending or
// Error invoice has its partial links cleared and is matched again.
func (s *service) MatchInvoice(ctx context.Context, invoiceID string) error {
	rec, err := s.store.Get(ctx, domain.TableInvoices, invoiceID)
	if err != nil {
		return fmt.Errorf("fetching invoice %s: %w", invoiceID, err)
	}
	inv := domain.InvoiceFromFields(rec.ID, rec.Fields)

	if len(inv.HeaderIDs) > 0 {
		if inv.Status != domain.InvoiceStatusPending && inv.Status != domain.InvoiceStatusError {
			log.Printf("matchService.MatchInvoice: invoice %s already has %d linked headers, skipping", invoiceID, len(inv.HeaderIDs))
			return nil
		}
		// A Pending or Error invoice with linked headers is a retry after
		// an aborted materialize run. Unlink the partial headers so the
		// re-match starts clean instead of dead-ending at the dedupe skip.
		log.Printf("matchService.MatchInvoice: invoice %s retried with %d partial header links, unlinking", invoiceID, len(inv.HeaderIDs))
		_, uerr := s.store.Update(ctx, domain.TableInvoices, []port.RecordPatch{{
			ID:     invoiceID,
			Fields: map[string]any{domain.FieldInvoiceHeaders: []string{}},
		}})
		if uerr != nil {
			return fmt.Errorf("unlinking partial headers on invoice %s: %w", invoiceID, uerr)
		}
		inv.HeaderIDs = nil
	}

	payload := ParsePayload(inv.MatchPayloadJSON)
	prompt := BuildMatchPrompt(inv, payload)

	out, err := s.extractor.Extract(ctx, port.ExtractInput{
		Prompt:     prompt,
		SchemaName: MatchSchemaName,
		Schema:     MatchSchema(),
		Strict:     true,
	})
	if err != nil {
		return s.handleExtractError(ctx, inv, err)
	}

	var resp MatchResponse
	if err := json.Unmarshal(out.Content, &resp); err != nil {
		s.failInvoice(ctx, invoiceID, nil, domain.ErrCodeMatchParse, fmt.Sprintf("match response did not fit schema: %v", err))
		return fmt.Errorf("parsing match response for invoice %s: %w", invoiceID, err)
	}

	result, materr := s.materializer.Materialize(ctx, invoiceID, &resp, payload)
	if materr != nil {
		// Headers created before the failure are linked anyway so the
		// idempotent dedupe check sees them on retry.
		s.failInvoice(ctx, invoiceID, result.HeaderIDs, domain.ErrCodeStoreFailed, fmt.Sprintf("materializing match result: %v", materr))
		return fmt.Errorf("materializing match result for invoice %s: %w", invoiceID, materr)
	}

	warnings := deriveWarnings(&resp, payload)
	balance := ComputeBalance(inv, result.Details)

	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshaling warnings for invoice %s: %w", invoiceID, err)
	}

	_, err = s.store.Update(ctx, domain.TableInvoices, []port.RecordPatch{{
		ID: invoiceID,
		Fields: map[string]any{
			domain.FieldInvoiceStatus:    string(domain.InvoiceStatusMatched),
			domain.FieldBalance:          balance,
			domain.FieldWarningsJSON:     string(warningsJSON),
			domain.FieldInvoiceHeaders:   result.HeaderIDs,
			domain.FieldErrorCode:        "",
			domain.FieldErrorDescription: "",
			domain.FieldRetryAfter:       "",
		},
	}})
	if err != nil {
		return fmt.Errorf("updating invoice %s after match: %w", invoiceID, err)
	}

	log.Printf("matchService.MatchInvoice: invoice %s matched with %d headers, %d details, balance %.2f, %d warnings",
		invoiceID, len(result.HeaderIDs), len(result.DetailIDs), balance, len(warnings))
	return nil
}

// handleExtractError maps the extractor's failure modes onto the invoice.
// Rate limits re-queue the invoice for the match queue worker; refusals
// and schema violations mark it errored.
func (s *service) handleExtractError(ctx context.Context, inv *domain.Invoice, err error) error {
	var rateLimitErr *extract.RateLimitError
	if errors.As(err, &rateLimitErr) {
		retryAt := time.Now().Add(rateLimitErr.RetryAfter).UTC().Format(time.RFC3339)
		_, uerr := s.store.Update(ctx, domain.TableInvoices, []port.RecordPatch{{
			ID:     inv.ID,
			Fields: map[string]any{domain.FieldRetryAfter: retryAt},
		}})
		if uerr != nil {
			log.Printf("matchService.MatchInvoice: failed to set retry-after on invoice %s: %v", inv.ID, uerr)
		}
		log.Printf("matchService.MatchInvoice: invoice %s rate limited, retry after %s", inv.ID, retryAt)
		return fmt.Errorf("matching invoice %s: %w", inv.ID, err)
	}

	var refusalErr *extract.RefusalError
	if errors.As(err, &refusalErr) {
		s.failInvoice(ctx, inv.ID, nil, domain.ErrCodeMatchRefused, refusalErr.Refusal)
		return fmt.Errorf("matching invoice %s: %w", inv.ID, err)
	}

	var schemaErr *extract.SchemaError
	if errors.As(err, &schemaErr) {
		s.failInvoice(ctx, inv.ID, nil, domain.ErrCodeMatchParse, schemaErr.Error())
		return fmt.Errorf("matching invoice %s: %w", inv.ID, err)
	}

	s.failInvoice(ctx, inv.ID, nil, domain.ErrCodeMatchFailed, err.Error())
	return fmt.Errorf("matching invoice %s: %w", inv.ID, err)
}

func (s *service) failInvoice(ctx context.Context, invoiceID string, headerIDs []string, code, description string) {
	fields := map[string]any{
		domain.FieldInvoiceStatus:    string(domain.InvoiceStatusError),
		domain.FieldErrorCode:        code,
		domain.FieldErrorDescription: description,
	}
	if len(headerIDs) > 0 {
		fields[domain.FieldInvoiceHeaders] = headerIDs
	}
	_, err := s.store.Update(ctx, domain.TableInvoices, []port.RecordPatch{{ID: invoiceID, Fields: fields}})
	if err != nil {
		log.Printf("matchService.failInvoice: failed to mark invoice %s as %s: %v", invoiceID, code, err)
	}
}

// ComputeBalance recomputes the invoice balance: subtotal minus the sum
// of matched PO value across created details. Details that resolved no
// receipt carry no Purchase-Price and contribute nothing to the PO side.
func ComputeBalance(inv *domain.Invoice, details []map[string]any) float64 {
	var poTotal float64
	for _, d := range details {
		if _, ok := d[domain.FieldPurchasePrice]; !ok {
			continue
		}
		poTotal += domain.FieldFloat(d, domain.FieldPurchasePrice) * domain.FieldFloat(d, domain.FieldQuantityInvoiced)
	}
	return round2(inv.Subtotal() - poTotal)
}

// deriveWarnings inspects the match response against the resolved
// receipts and records price/quantity deviations, unmatched lines and the
// model's own notes. Line numbers are 1-based in invoice line order
// across headers.
func deriveWarnings(resp *MatchResponse, payload *domain.MatchPayload) []domain.Warning {
	warnings := []domain.Warning{}
	var missingLines []int

	line := 0
	for _, header := range resp.Headers {
		for li := 0; li < len(header.Details); li++ {
			line++
			matches := header.Details[li]
			if len(matches) == 0 {
				missingLines = append(missingLines, line)
				continue
			}
			for _, mo := range matches {
				if mo.MatchObject < 0 || mo.MatchObject >= len(payload.Receipts) {
					missingLines = append(missingLines, line)
					continue
				}
				receipt := payload.Receipts[mo.MatchObject]
				poPrice := domain.FieldFloat(receipt, domain.FieldPurchasePrice)
				poQty := domain.FieldFloat(receipt, domain.FieldQuantityReceived)
				priceOff := !approxEqual(mo.InvoicePrice, poPrice)
				qtyOff := !approxEqual(mo.InvoiceQuantity, poQty)
				if !priceOff && !qtyOff {
					continue
				}
				warnings = append(warnings, domain.Warning{
					Type:            domain.WarningLineAmount,
					Line:            line,
					Item:            domain.FieldString(receipt, domain.FieldItemNumber),
					InvoicePrice:    mo.InvoicePrice,
					POPrice:         poPrice,
					InvoiceQuantity: mo.InvoiceQuantity,
					POQuantity:      poQty,
					InvoiceAmount:   mo.InvoiceAmount,
					POAmount:        round2(poPrice * mo.InvoiceQuantity),
				})
			}
		}
	}

	if len(missingLines) > 0 {
		warnings = append(warnings, domain.Warning{
			Type:  domain.WarningMissingReceipts,
			Lines: missingLines,
		})
	}
	if resp.Error != "" {
		warnings = append(warnings, domain.Warning{
			Type:    domain.WarningAIMatching,
			Message: resp.Error,
		})
	}
	return warnings
}
