package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payables/internal/domain"
	"payables/internal/poller"
	"payables/internal/port"
	"payables/mocks"
)

func newTestStatusService(t *testing.T, store *mocks.MockRecordStore, interval time.Duration) StatusService {
	t.Helper()
	registry := poller.NewRegistry(interval)
	t.Cleanup(registry.Shutdown)
	files := newTestFileService(store, new(mocks.MockObjectStorage))
	files.registry = registry
	invoices := NewInvoiceService(store, new(mocks.MockMatchService))
	return NewStatusService(files, invoices, registry)
}

func processedFileRecord() *port.Record {
	return &port.Record{
		ID: "recFile1",
		Fields: map[string]any{
			domain.FieldFileName:         "invoice.pdf",
			domain.FieldFileStatus:       string(domain.FileStatusProcessed),
			domain.FieldProcessingStatus: string(domain.StageMatched),
		},
	}
}

func matchedInvoiceRecord(balance float64) port.Record {
	return port.Record{
		ID: "inv1",
		Fields: map[string]any{
			domain.FieldInvoiceStatus:  string(domain.InvoiceStatusMatched),
			domain.FieldInvoiceNumber:  "INV-100",
			domain.FieldInvoiceFile:    []any{"recFile1"},
			domain.FieldInvoiceHeaders: []any{"hdr1"},
			domain.FieldBalance:        balance,
			domain.FieldWarningsJSON:   "[]",
		},
	}
}

func TestBuildFileView_CleanMatch(t *testing.T) {
	store := new(mocks.MockRecordStore)
	svc := newTestStatusService(t, store, time.Second)

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(processedFileRecord(), nil).Once()
	store.On("List", mock.Anything, domain.TableInvoices, mock.Anything).
		Return([]port.Record{matchedInvoiceRecord(0)}, nil).Once()

	view, err := svc.BuildFileView(context.Background(), "recFile1")
	require.NoError(t, err)

	assert.Equal(t, domain.UIStatusSuccess, view.UIStatus)
	assert.Equal(t, 100, view.Progress)
	require.Len(t, view.Invoices, 1)
	assert.Empty(t, view.Invoices[0].Issues)
	assert.Equal(t, "No issues found", view.Invoices[0].Summary)
}

func TestBuildFileView_BalanceVarianceBecomesCaveat(t *testing.T) {
	store := new(mocks.MockRecordStore)
	svc := newTestStatusService(t, store, time.Second)

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(processedFileRecord(), nil).Once()
	store.On("List", mock.Anything, domain.TableInvoices, mock.Anything).
		Return([]port.Record{matchedInvoiceRecord(12.34)}, nil).Once()

	view, err := svc.BuildFileView(context.Background(), "recFile1")
	require.NoError(t, err)

	assert.Equal(t, domain.UIStatusSuccessCaveats, view.UIStatus)
	require.Len(t, view.Invoices, 1)
	assert.NotEmpty(t, view.Invoices[0].Issues)
}

func TestBuildInvoiceView(t *testing.T) {
	store := new(mocks.MockRecordStore)
	svc := newTestStatusService(t, store, time.Second)

	rec := matchedInvoiceRecord(0)
	store.On("Get", mock.Anything, domain.TableInvoices, "inv1").
		Return(&rec, nil).Once()

	view, err := svc.BuildInvoiceView(context.Background(), "inv1")
	require.NoError(t, err)
	assert.Equal(t, "INV-100", view.Invoice.InvoiceNumber)
	assert.Equal(t, "No issues found", view.Summary)
}

func TestWatchFile_StopsOnTerminalSnapshot(t *testing.T) {
	store := new(mocks.MockRecordStore)
	svc := newTestStatusService(t, store, 20*time.Millisecond)

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(processedFileRecord(), nil)
	store.On("List", mock.Anything, domain.TableInvoices, mock.Anything).
		Return([]port.Record{matchedInvoiceRecord(0)}, nil)

	snaps := make(chan poller.Snapshot, 8)
	started := svc.WatchFile("recFile1", func(snap poller.Snapshot) {
		select {
		case snaps <- snap:
		default:
		}
	})
	require.True(t, started)

	select {
	case snap := <-snaps:
		assert.Equal(t, domain.UIStatusSuccess, snap.UIStatus)
		assert.True(t, snap.Terminal())
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot observed")
	}

	// A second watch is possible once the loop has drained.
	assert.Eventually(t, func() bool {
		return svc.WatchFile("recFile1", func(poller.Snapshot) {})
	}, 2*time.Second, 20*time.Millisecond)
	svc.Unwatch("recFile1")
}
