package service

import (
	"context"
	"fmt"

	"payables/internal/domain"
	"payables/internal/poller"
	"payables/internal/status"
	"payables/internal/variance"
)

// InvoiceView is one invoice decorated with its derived issues.
type InvoiceView struct {
	Invoice *domain.Invoice        `json:"invoice"`
	Issues  []domain.DetailedIssue `json:"issues"`
	Summary string                 `json:"summary"`
}

// FileView is the full display state of a file: the record itself, its
// derived status/progress and the decorated invoices.
type FileView struct {
	File     *domain.File    `json:"file"`
	UIStatus domain.UIStatus `json:"ui_status"`
	Progress int             `json:"progress"`
	Invoices []InvoiceView   `json:"invoices"`
}

// StatusService derives display state and runs status polling loops.
type StatusService interface {
	BuildFileView(ctx context.Context, fileID string) (*FileView, error)
	BuildInvoiceView(ctx context.Context, invoiceID string) (*InvoiceView, error)
	WatchFile(fileID string, observe poller.ObserverFunc) bool
	Unwatch(fileID string)
}

type statusService struct {
	files    FileService
	invoices InvoiceService
	registry *poller.Registry
}

// NewStatusService creates a new StatusService implementation.
func NewStatusService(files FileService, invoices InvoiceService, registry *poller.Registry) StatusService {
	return &statusService{
		files:    files,
		invoices: invoices,
		registry: registry,
	}
}

func (s *statusService) BuildFileView(ctx context.Context, fileID string) (*FileView, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.files.ListInvoices(ctx, fileID)
	if err != nil {
		return nil, err
	}

	views := make([]InvoiceView, 0, len(invoices))
	for i := range invoices {
		issues, summary := variance.Derive(&invoices[i])
		views = append(views, InvoiceView{
			Invoice: &invoices[i],
			Issues:  issues,
			Summary: summary,
		})
	}

	return &FileView{
		File:     file,
		UIStatus: status.MapFileStatus(file, invoices),
		Progress: status.Progress(file.ProcessingStage),
		Invoices: views,
	}, nil
}

func (s *statusService) BuildInvoiceView(ctx context.Context, invoiceID string) (*InvoiceView, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	issues, summary := variance.Derive(inv)
	return &InvoiceView{Invoice: inv, Issues: issues, Summary: summary}, nil
}

// WatchFile starts a polling loop whose snapshots fold the file view
// down to what a status consumer needs. Returns false if the file is
// already watched.
func (s *statusService) WatchFile(fileID string, observe poller.ObserverFunc) bool {
	fetch := func(ctx context.Context) (poller.Snapshot, error) {
		view, err := s.BuildFileView(ctx, fileID)
		if err != nil {
			return poller.Snapshot{}, fmt.Errorf("building view for file %s: %w", fileID, err)
		}
		return snapshotFromView(view), nil
	}
	return s.registry.Start(fileID, fetch, observe)
}

func (s *statusService) Unwatch(fileID string) {
	s.registry.Stop(fileID)
}

func snapshotFromView(view *FileView) poller.Snapshot {
	snap := poller.Snapshot{
		ID:        view.File.ID,
		UIStatus:  view.UIStatus,
		Progress:  view.Progress,
		ErrorCode: view.File.ErrorCode,
	}
	for _, iv := range view.Invoices {
		snap.Issues = append(snap.Issues, iv.Issues...)
		if snap.Summary == "" {
			snap.Summary = iv.Summary
		}
	}
	return snap
}
