package service

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

const pipelineTimeout = 10 * time.Minute

// processInBackground runs the full pipeline for one file in its own
// goroutine. The cancel func is tracked so Clear can abort the run.
func (s *fileService) processInBackground(fileID, contentType string) {
	ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
	defer cancel()

	s.trackInFlight(fileID, cancel)
	defer s.untrackInFlight(fileID)

	if err := s.runPipeline(ctx, fileID, contentType); err != nil {
		log.Printf("fileService.processInBackground: pipeline for file %s stopped: %v", fileID, err)
	}
}

// runPipeline drives a file through detection, parsing, invoice linking
// and matching. Each stage persists its token before the work so a
// crashed run leaves an honest Processing-Status behind. A file that
// already carries invoice links skips straight to matching, which makes
// reruns after partial failures safe.
func (s *fileService) runPipeline(ctx context.Context, fileID, contentType string) error {
	rec, err := s.store.Get(ctx, domain.TableFiles, fileID)
	if err != nil {
		return fmt.Errorf("fetching file %s: %w", fileID, err)
	}
	file := domain.FileFromFields(rec.ID, rec.Fields)

	if file.Cleared {
		log.Printf("fileService.runPipeline: file %s is cleared, skipping", fileID)
		return nil
	}

	invoiceIDs := file.InvoiceIDs
	if len(invoiceIDs) == 0 {
		invoiceIDs, err = s.runExtraction(ctx, file, contentType)
		if err != nil {
			return err
		}
	} else {
		log.Printf("fileService.runPipeline: file %s already has %d invoices, resuming at matching", fileID, len(invoiceIDs))
	}

	if err := s.setStage(ctx, fileID, domain.FileStatusProcessing, domain.StagePOMatching); err != nil {
		return err
	}

	return s.runMatching(ctx, fileID, invoiceIDs)
}

// runExtraction covers the OCR, field-extraction and invoice-linking
// stages and returns the ids of the created invoice records.
func (s *fileService) runExtraction(ctx context.Context, file *domain.File, contentType string) ([]string, error) {
	if err := s.setStage(ctx, file.ID, domain.FileStatusProcessing, domain.StageDocumentDetection); err != nil {
		return nil, err
	}

	data, err := s.storage.Download(ctx, s.cfg.S3.Bucket, file.StorageKey)
	if err != nil {
		s.failFile(ctx, file.ID, file.Name, domain.ErrCodeOCRFailed, fmt.Sprintf("downloading document: %v", err))
		return nil, fmt.Errorf("downloading file %s: %w", file.ID, err)
	}

	ocrText, err := s.ocr.ExtractText(ctx, data, contentType)
	if err != nil {
		s.failFile(ctx, file.ID, file.Name, domain.ErrCodeOCRFailed, fmt.Sprintf("document text detection: %v", err))
		return nil, fmt.Errorf("running OCR for file %s: %w", file.ID, err)
	}

	_, err = s.store.Update(ctx, domain.TableFiles, []port.RecordPatch{{
		ID: file.ID,
		Fields: map[string]any{
			domain.FieldOCRText:          ocrText,
			domain.FieldProcessingStatus: string(domain.StageParsing),
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("saving OCR text for file %s: %w", file.ID, err)
	}

	extracted, err := s.extractInvoiceFields(ctx, ocrText)
	if err != nil {
		s.failFile(ctx, file.ID, file.Name, domain.ErrCodeExtractFailed, err.Error())
		return nil, fmt.Errorf("extracting invoice fields for file %s: %w", file.ID, err)
	}
	if len(extracted) == 0 {
		s.failFile(ctx, file.ID, file.Name, domain.ErrCodeExtractFailed, "no invoices found in document")
		return nil, fmt.Errorf("no invoices found in file %s", file.ID)
	}

	if err := s.setStage(ctx, file.ID, domain.FileStatusProcessing, domain.StageInvoiceLinking); err != nil {
		return nil, err
	}

	invoiceIDs, err := s.linkInvoices(ctx, file.ID, extracted)
	if err != nil {
		s.failFile(ctx, file.ID, file.Name, domain.ErrCodeLinkFailed, err.Error())
		return nil, fmt.Errorf("linking invoices for file %s: %w", file.ID, err)
	}

	_, err = s.store.Update(ctx, domain.TableFiles, []port.RecordPatch{{
		ID:     file.ID,
		Fields: map[string]any{domain.FieldFileInvoices: invoiceIDs},
	}})
	if err != nil {
		return nil, fmt.Errorf("linking invoices onto file %s: %w", file.ID, err)
	}

	log.Printf("fileService.runPipeline: file %s produced %d invoices", file.ID, len(invoiceIDs))
	return invoiceIDs, nil
}

// extractInvoiceFields asks the structured extractor for the invoice
// header fields present in the OCR text.
func (s *fileService) extractInvoiceFields(ctx context.Context, ocrText string) ([]domain.ExtractedInvoice, error) {
	out, err := s.extractor.Extract(ctx, port.ExtractInput{
		Prompt:     extract.BuildInvoiceFieldPrompt(ocrText),
		SchemaName: extract.InvoiceFieldSchemaName,
		Schema:     extract.InvoiceFieldSchema(),
		Strict:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("field extraction: %w", err)
	}

	var parsed struct {
		Invoices []domain.ExtractedInvoice `json:"invoices"`
	}
	if err := json.Unmarshal(out.Content, &parsed); err != nil {
		return nil, fmt.Errorf("parsing field extraction response: %w", err)
	}
	return parsed.Invoices, nil
}

// linkInvoices creates one invoice record per extracted invoice. Each
// record carries its match payload: the vendor looked up by name plus
// that vendor's open receipt lines, frozen as JSON at linking time.
func (s *fileService) linkInvoices(ctx context.Context, fileID string, extracted []domain.ExtractedInvoice) ([]string, error) {
	creates := make([]map[string]any, 0, len(extracted))
	for _, inv := range extracted {
		payload, vendorID := s.buildMatchPayload(ctx, inv.VendorName)

		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling match payload for invoice %s: %w", inv.InvoiceNumber, err)
		}

		fields := map[string]any{
			domain.FieldInvoiceFile:      []string{fileID},
			domain.FieldVendorName:       inv.VendorName,
			domain.FieldInvoiceNumber:    inv.InvoiceNumber,
			domain.FieldInvoiceDate:      inv.InvoiceDate,
			domain.FieldInvoiceAmount:    inv.InvoiceAmount,
			domain.FieldFreightAmount:    inv.FreightAmount,
			domain.FieldMiscAmount:       inv.MiscAmount,
			domain.FieldSurchargeAmount:  inv.SurchargeAmount,
			domain.FieldInvoiceStatus:    string(domain.InvoiceStatusPending),
			domain.FieldMatchPayloadJSON: string(payloadJSON),
		}
		if vendorID != "" {
			fields[domain.FieldVendorID] = vendorID
		}
		creates = append(creates, fields)
	}

	records, err := s.store.Create(ctx, domain.TableInvoices, creates)
	if err != nil {
		return nil, fmt.Errorf("creating invoice records: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

// buildMatchPayload resolves a vendor by exact name and collects its
// open receipt lines. Lookup failures degrade to an empty payload; the
// matcher surfaces the absence as a warning rather than the pipeline
// failing the whole file.
func (s *fileService) buildMatchPayload(ctx context.Context, vendorName string) (*domain.MatchPayload, string) {
	payload := &domain.MatchPayload{}
	if vendorName == "" {
		return payload, ""
	}

	vendors, err := s.store.List(ctx, domain.TableVendors, port.Query{
		Conditions: []port.Condition{
			{Field: domain.FieldVendorName, Op: port.OpEqual, Value: vendorName},
		},
		MaxRecords: 1,
	})
	if err != nil {
		log.Printf("fileService.buildMatchPayload: vendor lookup for %q failed: %v", vendorName, err)
		return payload, ""
	}
	if len(vendors) == 0 {
		log.Printf("fileService.buildMatchPayload: no vendor record for %q", vendorName)
		return payload, ""
	}

	payload.Vendor = vendors[0].Fields
	vendorID := domain.FieldString(vendors[0].Fields, domain.FieldVendorID)
	if vendorID == "" {
		return payload, ""
	}

	receipts, err := s.store.List(ctx, domain.TableReceipts, port.Query{
		Conditions: []port.Condition{
			{Field: domain.FieldVendorID, Op: port.OpEqual, Value: vendorID},
		},
	})
	if err != nil {
		log.Printf("fileService.buildMatchPayload: receipt lookup for vendor %s failed: %v", vendorID, err)
		return payload, vendorID
	}
	for _, rec := range receipts {
		payload.Receipts = append(payload.Receipts, rec.Fields)
	}
	return payload, vendorID
}

// runMatching matches every linked invoice. Rate-limited invoices are
// left Pending with a Retry-After stamp for the match queue worker and
// do not fail the file; any other match failure marks it Attention.
func (s *fileService) runMatching(ctx context.Context, fileID string, invoiceIDs []string) error {
	var failed, deferred bool
	for _, invoiceID := range invoiceIDs {
		err := s.matcher.MatchInvoice(ctx, invoiceID)
		if err == nil {
			continue
		}
		var rateLimitErr *extract.RateLimitError
		if errors.As(err, &rateLimitErr) {
			deferred = true
			continue
		}
		log.Printf("fileService.runMatching: matching invoice %s failed: %v", invoiceID, err)
		failed = true
	}

	if failed {
		rec, gerr := s.store.Get(ctx, domain.TableFiles, fileID)
		name := fileID
		if gerr == nil {
			name = domain.FieldString(rec.Fields, domain.FieldFileName)
		}
		s.failFile(ctx, fileID, name, domain.ErrCodeMatchFailed, "one or more invoices failed to match")
		return fmt.Errorf("matching failed for file %s", fileID)
	}
	if deferred {
		// The match queue worker picks the remaining invoices up and
		// reconciles the file afterwards.
		log.Printf("fileService.runMatching: file %s has rate-limited invoices, leaving in po-matching", fileID)
		return nil
	}

	if err := s.setStage(ctx, fileID, domain.FileStatusProcessed, domain.StageMatched); err != nil {
		return err
	}
	log.Printf("fileService.runMatching: file %s fully matched", fileID)
	return nil
}

// ReconcileFile re-derives the file's status from its invoices. The
// match queue worker calls this after each deferred match attempt.
func (s *fileService) ReconcileFile(ctx context.Context, fileID string) error {
	rec, err := s.store.Get(ctx, domain.TableFiles, fileID)
	if err != nil {
		return fmt.Errorf("fetching file %s: %w", fileID, err)
	}
	file := domain.FileFromFields(rec.ID, rec.Fields)

	invoices, err := s.ListInvoices(ctx, fileID)
	if err != nil {
		return err
	}

	var pending bool
	for _, inv := range invoices {
		switch inv.Status {
		case domain.InvoiceStatusError:
			s.failFile(ctx, fileID, file.Name, inv.ErrorCode, inv.ErrorDescription)
			return nil
		case domain.InvoiceStatusPending:
			pending = true
		}
	}

	if !pending && file.ProcessingStage == domain.StagePOMatching {
		if err := s.setStage(ctx, fileID, domain.FileStatusProcessed, domain.StageMatched); err != nil {
			return err
		}
		log.Printf("fileService.ReconcileFile: file %s fully matched", fileID)
	}
	return nil
}

func (s *fileService) setStage(ctx context.Context, fileID string, status domain.FileStatus, stage domain.ProcessingStage) error {
	_, err := s.store.Update(ctx, domain.TableFiles, []port.RecordPatch{{
		ID: fileID,
		Fields: map[string]any{
			domain.FieldFileStatus:       string(status),
			domain.FieldProcessingStatus: string(stage),
		},
	}})
	if err != nil {
		return fmt.Errorf("setting file %s to %s/%s: %w", fileID, status, stage, err)
	}
	return nil
}

// failFile marks the file Attention with the absorbing ERROR stage and
// notifies the reviewer. Alert delivery failures are logged only.
func (s *fileService) failFile(ctx context.Context, fileID, fileName, code, description string) {
	_, err := s.store.Update(ctx, domain.TableFiles, []port.RecordPatch{{
		ID: fileID,
		Fields: map[string]any{
			domain.FieldFileStatus:       string(domain.FileStatusAttention),
			domain.FieldProcessingStatus: string(domain.StageError),
			domain.FieldErrorCode:        code,
			domain.FieldErrorDescription: description,
		},
	}})
	if err != nil {
		log.Printf("fileService.failFile: failed to mark file %s as %s: %v", fileID, code, err)
	}

	if aerr := s.alerts.SendAttentionAlert(ctx, port.ReviewAlert{
		FileID:           fileID,
		FileName:         fileName,
		ErrorCode:        code,
		ErrorDescription: description,
	}); aerr != nil {
		log.Printf("fileService.failFile: attention alert for file %s failed: %v", fileID, aerr)
	}
}
