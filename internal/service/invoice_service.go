package service

import (
	"context"
	"fmt"
	"log"

	"payables/internal/domain"
	"payables/internal/matching"
	"payables/internal/port"
)

// InvoiceService defines invoice-level operations.
type InvoiceService interface {
	GetByID(ctx context.Context, invoiceID string) (*domain.Invoice, error)
	ListByStatus(ctx context.Context, st domain.InvoiceStatus) ([]domain.Invoice, error)
	QueueForExport(ctx context.Context, invoiceID string) (*domain.Invoice, error)
	RetryMatch(ctx context.Context, invoiceID string) (*domain.Invoice, error)
}

type invoiceService struct {
	store   port.RecordStore
	matcher matching.Service
}

// NewInvoiceService creates a new InvoiceService implementation.
func NewInvoiceService(store port.RecordStore, matcher matching.Service) InvoiceService {
	return &invoiceService{store: store, matcher: matcher}
}

func (s *invoiceService) GetByID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	rec, err := s.store.Get(ctx, domain.TableInvoices, invoiceID)
	if err != nil {
		return nil, err
	}
	inv := domain.InvoiceFromFields(rec.ID, rec.Fields)
	inv.CreatedTime = rec.CreatedTime
	return inv, nil
}

func (s *invoiceService) ListByStatus(ctx context.Context, st domain.InvoiceStatus) ([]domain.Invoice, error) {
	records, err := s.store.List(ctx, domain.TableInvoices, port.Query{
		Conditions: []port.Condition{
			{Field: domain.FieldInvoiceStatus, Op: port.OpEqual, Value: string(st)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s invoices: %w", st, err)
	}
	invoices := make([]domain.Invoice, 0, len(records))
	for _, rec := range records {
		inv := domain.InvoiceFromFields(rec.ID, rec.Fields)
		inv.CreatedTime = rec.CreatedTime
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

// QueueForExport moves a matched invoice into the export queue. Only
// Matched invoices are eligible; queuing anything else is rejected so an
// errored or already exported invoice cannot slip into a workbook.
func (s *invoiceService) QueueForExport(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvoiceStatusMatched {
		return nil, fmt.Errorf("invoice %s is %s: %w", invoiceID, inv.Status, domain.ErrInvalidStatus)
	}

	updated, err := s.store.Update(ctx, domain.TableInvoices, []port.RecordPatch{{
		ID:     invoiceID,
		Fields: map[string]any{domain.FieldInvoiceStatus: string(domain.InvoiceStatusQueued)},
	}})
	if err != nil {
		return nil, fmt.Errorf("queuing invoice %s for export: %w", invoiceID, err)
	}

	out := domain.InvoiceFromFields(updated[0].ID, updated[0].Fields)
	out.CreatedTime = inv.CreatedTime
	log.Printf("invoiceService.QueueForExport: invoice %s queued", invoiceID)
	return out, nil
}

// RetryMatch clears an errored invoice back to Pending and runs the
// match step again synchronously.
func (s *invoiceService) RetryMatch(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvoiceStatusError {
		return nil, fmt.Errorf("invoice %s is %s: %w", invoiceID, inv.Status, domain.ErrInvalidStatus)
	}

	_, err = s.store.Update(ctx, domain.TableInvoices, []port.RecordPatch{{
		ID: invoiceID,
		Fields: map[string]any{
			domain.FieldInvoiceStatus:    string(domain.InvoiceStatusPending),
			domain.FieldErrorCode:        "",
			domain.FieldErrorDescription: "",
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("resetting invoice %s: %w", invoiceID, err)
	}

	if merr := s.matcher.MatchInvoice(ctx, invoiceID); merr != nil {
		log.Printf("invoiceService.RetryMatch: rematch of invoice %s failed: %v", invoiceID, merr)
	}
	return s.GetByID(ctx, invoiceID)
}
