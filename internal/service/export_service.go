package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"payables/internal/config"
	"payables/internal/domain"
	"payables/internal/export"
	"payables/internal/port"
)

// ExportResult reports one export run.
type ExportResult struct {
	InvoiceIDs []string `json:"invoice_ids"`
	ObjectKey  string   `json:"object_key"`
	Filename   string   `json:"filename"`
}

// ExportService renders queued invoices into workbooks and marks them
// exported.
type ExportService interface {
	ExportQueued(ctx context.Context) (*ExportResult, error)
}

type exportService struct {
	store   port.RecordStore
	storage port.ObjectStorage
	cfg     *config.ExportConfig
}

// NewExportService creates a new ExportService implementation.
func NewExportService(store port.RecordStore, storage port.ObjectStorage, cfg *config.ExportConfig) ExportService {
	return &exportService{store: store, storage: storage, cfg: cfg}
}

// ExportQueued collects every Queued invoice, builds the workbook,
// uploads it and flips the invoices to Exported. An invoice whose
// header or detail fetch fails is dropped from the batch and stays
// Queued for the next run.
func (s *exportService) ExportQueued(ctx context.Context) (*ExportResult, error) {
	records, err := s.store.List(ctx, domain.TableInvoices, port.Query{
		Conditions: []port.Condition{
			{Field: domain.FieldInvoiceStatus, Op: port.OpEqual, Value: string(domain.InvoiceStatusQueued)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("listing queued invoices: %w", err)
	}
	if len(records) == 0 {
		return &ExportResult{}, nil
	}

	var batch []export.InvoiceExport
	var exportedIDs []string
	for _, rec := range records {
		inv := domain.InvoiceFromFields(rec.ID, rec.Fields)
		item, berr := s.collectInvoice(ctx, inv)
		if berr != nil {
			log.Printf("exportService.ExportQueued: skipping invoice %s: %v", inv.ID, berr)
			continue
		}
		batch = append(batch, *item)
		exportedIDs = append(exportedIDs, inv.ID)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("no queued invoice could be assembled for export")
	}

	workbook, err := export.BuildWorkbook(batch)
	if err != nil {
		return nil, fmt.Errorf("building export workbook: %w", err)
	}
	buf, err := workbook.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing export workbook: %w", err)
	}

	filename := export.BuildFilename(batch[0].Invoice.VendorName)
	objectKey := fmt.Sprintf("%s/%s", s.cfg.Prefix, filename)

	_, err = s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.Bucket,
		Key:         objectKey,
		Body:        buf,
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Size:        int64(buf.Len()),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading export workbook: %w", err)
	}

	exportedAt := time.Now().UTC().Format(time.RFC3339)
	patches := make([]port.RecordPatch, 0, len(exportedIDs))
	for _, id := range exportedIDs {
		patches = append(patches, port.RecordPatch{
			ID: id,
			Fields: map[string]any{
				domain.FieldInvoiceStatus: string(domain.InvoiceStatusExported),
				domain.FieldExportedAt:    exportedAt,
			},
		})
	}
	if _, err := s.store.Update(ctx, domain.TableInvoices, patches); err != nil {
		return nil, fmt.Errorf("marking invoices exported: %w", err)
	}

	log.Printf("exportService.ExportQueued: exported %d invoices to %s", len(exportedIDs), objectKey)
	return &ExportResult{
		InvoiceIDs: exportedIDs,
		ObjectKey:  objectKey,
		Filename:   filename,
	}, nil
}

// collectInvoice fetches the matched header and detail records for one
// queued invoice.
func (s *exportService) collectInvoice(ctx context.Context, inv *domain.Invoice) (*export.InvoiceExport, error) {
	item := &export.InvoiceExport{Invoice: *inv}
	for _, headerID := range inv.HeaderIDs {
		header, err := s.store.Get(ctx, domain.TableHeaders, headerID)
		if err != nil {
			return nil, fmt.Errorf("fetching header %s: %w", headerID, err)
		}
		item.Headers = append(item.Headers, *header)

		details, err := s.store.List(ctx, domain.TableDetails, port.Query{
			Conditions: []port.Condition{
				{Field: domain.FieldDetailHeader, Op: port.OpContains, Value: headerID},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("fetching details for header %s: %w", headerID, err)
		}
		item.Details = append(item.Details, details...)
	}
	return item, nil
}
