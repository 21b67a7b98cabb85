package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payables/internal/config"
	"payables/internal/domain"
	"payables/internal/poller"
	"payables/internal/port"
	"payables/mocks"
)

type fakeMultipartFile struct {
	*bytes.Reader
}

func (f *fakeMultipartFile) Close() error { return nil }

func uploadInput(name string, data []byte) FileUploadInput {
	return FileUploadInput{
		File:   &fakeMultipartFile{bytes.NewReader(data)},
		Header: &multipart.FileHeader{Filename: name, Size: int64(len(data))},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		S3:    config.S3Config{Bucket: "test-bucket", MaxFileSizeMB: 1, PresignExpiry: 900},
		Queue: config.QueueConfig{MaxRetries: 3},
	}
}

func newTestFileService(store *mocks.MockRecordStore, storage *mocks.MockObjectStorage) *fileService {
	alerts := new(mocks.MockAlertSender)
	alerts.On("SendAttentionAlert", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewFileService(
		store,
		storage,
		new(mocks.MockTextExtractor),
		new(mocks.MockStructuredExtractor),
		new(mocks.MockMatchService),
		alerts,
		poller.NewRegistry(time.Second),
		testConfig(),
	).(*fileService)
}

func pdfBytes() []byte {
	return append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("content "), 16)...)
}

func TestUpload_RejectsUnsupportedExtension(t *testing.T) {
	svc := newTestFileService(new(mocks.MockRecordStore), new(mocks.MockObjectStorage))

	_, err := svc.Upload(context.Background(), uploadInput("macro.xlsm", pdfBytes()))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	svc := newTestFileService(new(mocks.MockRecordStore), new(mocks.MockObjectStorage))

	input := uploadInput("big.pdf", pdfBytes())
	input.Header.Size = 2 * 1024 * 1024
	_, err := svc.Upload(context.Background(), input)
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

func TestUpload_RejectsMismatchedMagicBytes(t *testing.T) {
	svc := newTestFileService(new(mocks.MockRecordStore), new(mocks.MockObjectStorage))

	// A .pdf name over plain text content fails detection.
	_, err := svc.Upload(context.Background(), uploadInput("fake.pdf", []byte("just some text, no magic")))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

func TestUpload_DuplicateContentReturnsExistingFile(t *testing.T) {
	store := new(mocks.MockRecordStore)
	storage := new(mocks.MockObjectStorage)
	svc := newTestFileService(store, storage)

	store.On("List", mock.Anything, domain.TableFiles, mock.MatchedBy(func(q port.Query) bool {
		return len(q.Conditions) == 2 &&
			q.Conditions[0].Field == domain.FieldContentHash &&
			q.Conditions[1].Op == port.OpNotTrue
	})).Return([]port.Record{{
		ID: "recExisting",
		Fields: map[string]any{
			domain.FieldFileName:   "invoice.pdf",
			domain.FieldFileStatus: string(domain.FileStatusProcessed),
		},
	}}, nil).Once()

	result, err := svc.Upload(context.Background(), uploadInput("invoice-copy.pdf", pdfBytes()))
	require.NoError(t, err)

	assert.True(t, result.Duplicate)
	assert.Equal(t, "recExisting", result.File.ID)
	assert.Equal(t, domain.ErrCodeDuplicate, result.File.ErrorCode)

	// Nothing is created or uploaded on the duplicate path.
	store.AssertNotCalled(t, "Create")
	storage.AssertNotCalled(t, "Upload")
}

func TestUpload_StorageFailureMarksFileAttention(t *testing.T) {
	store := new(mocks.MockRecordStore)
	storage := new(mocks.MockObjectStorage)
	svc := newTestFileService(store, storage)

	store.On("List", mock.Anything, domain.TableFiles, mock.Anything).
		Return([]port.Record{}, nil).Once()
	store.On("Create", mock.Anything, domain.TableFiles, mock.Anything).
		Return([]port.Record{{ID: "rec1", Fields: map[string]any{domain.FieldFileName: "invoice.pdf"}}}, nil).Once()
	storage.On("Upload", mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	var patch port.RecordPatch
	store.On("Update", mock.Anything, domain.TableFiles, mock.Anything).
		Run(func(args mock.Arguments) { patch = args.Get(2).([]port.RecordPatch)[0] }).
		Return([]port.Record{{ID: "rec1"}}, nil).Once()

	_, err := svc.Upload(context.Background(), uploadInput("invoice.pdf", pdfBytes()))
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.Equal(t, string(domain.FileStatusAttention), patch.Fields[domain.FieldFileStatus])
	assert.Equal(t, string(domain.StageError), patch.Fields[domain.FieldProcessingStatus])
}

func TestListInvoices_FiltersByFileLink(t *testing.T) {
	store := new(mocks.MockRecordStore)
	svc := newTestFileService(store, new(mocks.MockObjectStorage))

	store.On("List", mock.Anything, domain.TableInvoices, mock.MatchedBy(func(q port.Query) bool {
		return len(q.Conditions) == 1 &&
			q.Conditions[0].Field == domain.FieldInvoiceFile &&
			q.Conditions[0].Op == port.OpContains &&
			q.Conditions[0].Value == "recFile1"
	})).Return([]port.Record{
		{ID: "inv1", Fields: map[string]any{
			domain.FieldInvoiceNumber: "INV-100",
			domain.FieldInvoiceFile:   []any{"recFile1"},
		}},
	}, nil).Once()

	invoices, err := svc.ListInvoices(context.Background(), "recFile1")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-100", invoices[0].InvoiceNumber)
	assert.Equal(t, "recFile1", invoices[0].FileID)
}

func TestReconcileFile_ErroredInvoiceFailsFile(t *testing.T) {
	store := new(mocks.MockRecordStore)
	svc := newTestFileService(store, new(mocks.MockObjectStorage))

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(&port.Record{ID: "recFile1", Fields: map[string]any{
			domain.FieldFileName:         "invoice.pdf",
			domain.FieldProcessingStatus: string(domain.StagePOMatching),
		}}, nil).Once()
	store.On("List", mock.Anything, domain.TableInvoices, mock.Anything).
		Return([]port.Record{
			{ID: "inv1", Fields: map[string]any{
				domain.FieldInvoiceStatus:    string(domain.InvoiceStatusError),
				domain.FieldErrorCode:        domain.ErrCodeMatchFailed,
				domain.FieldErrorDescription: "rate limit retries exhausted",
			}},
		}, nil).Once()

	var patch port.RecordPatch
	store.On("Update", mock.Anything, domain.TableFiles, mock.Anything).
		Run(func(args mock.Arguments) { patch = args.Get(2).([]port.RecordPatch)[0] }).
		Return([]port.Record{{ID: "recFile1"}}, nil).Once()

	require.NoError(t, svc.ReconcileFile(context.Background(), "recFile1"))
	assert.Equal(t, string(domain.FileStatusAttention), patch.Fields[domain.FieldFileStatus])
	assert.Equal(t, domain.ErrCodeMatchFailed, patch.Fields[domain.FieldErrorCode])
}

func TestReconcileFile_AllMatchedCompletesFile(t *testing.T) {
	store := new(mocks.MockRecordStore)
	svc := newTestFileService(store, new(mocks.MockObjectStorage))

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(&port.Record{ID: "recFile1", Fields: map[string]any{
			domain.FieldProcessingStatus: string(domain.StagePOMatching),
		}}, nil).Once()
	store.On("List", mock.Anything, domain.TableInvoices, mock.Anything).
		Return([]port.Record{
			{ID: "inv1", Fields: map[string]any{domain.FieldInvoiceStatus: string(domain.InvoiceStatusMatched)}},
		}, nil).Once()

	var patch port.RecordPatch
	store.On("Update", mock.Anything, domain.TableFiles, mock.Anything).
		Run(func(args mock.Arguments) { patch = args.Get(2).([]port.RecordPatch)[0] }).
		Return([]port.Record{{ID: "recFile1"}}, nil).Once()

	require.NoError(t, svc.ReconcileFile(context.Background(), "recFile1"))
	assert.Equal(t, string(domain.FileStatusProcessed), patch.Fields[domain.FieldFileStatus])
	assert.Equal(t, string(domain.StageMatched), patch.Fields[domain.FieldProcessingStatus])
}

func TestReconcileFile_PendingInvoicesLeaveFileAlone(t *testing.T) {
	store := new(mocks.MockRecordStore)
	svc := newTestFileService(store, new(mocks.MockObjectStorage))

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(&port.Record{ID: "recFile1", Fields: map[string]any{
			domain.FieldProcessingStatus: string(domain.StagePOMatching),
		}}, nil).Once()
	store.On("List", mock.Anything, domain.TableInvoices, mock.Anything).
		Return([]port.Record{
			{ID: "inv1", Fields: map[string]any{domain.FieldInvoiceStatus: string(domain.InvoiceStatusPending)}},
		}, nil).Once()

	require.NoError(t, svc.ReconcileFile(context.Background(), "recFile1"))
	store.AssertNotCalled(t, "Update")
}

func TestClear_CancelsFlagsRecordAndDeletesObject(t *testing.T) {
	store := new(mocks.MockRecordStore)
	storage := new(mocks.MockObjectStorage)
	svc := newTestFileService(store, storage)

	cancelled := false
	svc.trackInFlight("recFile1", func() { cancelled = true })

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(&port.Record{ID: "recFile1", Fields: map[string]any{
			domain.FieldStorageKey: "files/abc/invoice.pdf",
		}}, nil).Once()

	var patch port.RecordPatch
	store.On("Update", mock.Anything, domain.TableFiles, mock.Anything).
		Run(func(args mock.Arguments) { patch = args.Get(2).([]port.RecordPatch)[0] }).
		Return([]port.Record{{ID: "recFile1"}}, nil).Once()
	storage.On("Delete", mock.Anything, "test-bucket", "files/abc/invoice.pdf").
		Return(nil).Once()

	require.NoError(t, svc.Clear(context.Background(), "recFile1"))
	assert.True(t, cancelled)
	assert.Equal(t, true, patch.Fields[domain.FieldCleared])
	storage.AssertExpectations(t)
}

func TestClear_ObjectDeleteFailureKeepsRecordCleared(t *testing.T) {
	store := new(mocks.MockRecordStore)
	storage := new(mocks.MockObjectStorage)
	svc := newTestFileService(store, storage)

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(&port.Record{ID: "recFile1", Fields: map[string]any{
			domain.FieldStorageKey: "files/abc/invoice.pdf",
		}}, nil).Once()
	store.On("Update", mock.Anything, domain.TableFiles, mock.Anything).
		Return([]port.Record{{ID: "recFile1"}}, nil).Once()
	storage.On("Delete", mock.Anything, "test-bucket", "files/abc/invoice.pdf").
		Return(assert.AnError).Once()

	require.NoError(t, svc.Clear(context.Background(), "recFile1"))
}

func TestDownloadURL_PresignsStoredObject(t *testing.T) {
	store := new(mocks.MockRecordStore)
	storage := new(mocks.MockObjectStorage)
	svc := newTestFileService(store, storage)

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(&port.Record{ID: "recFile1", Fields: map[string]any{
			domain.FieldStorageKey: "files/abc/invoice.pdf",
		}}, nil).Once()
	storage.On("GetPresignedURL", mock.Anything, "test-bucket", "files/abc/invoice.pdf", int64(900)).
		Return("https://test-bucket.s3.amazonaws.com/files/abc/invoice.pdf?sig=x", nil).Once()

	url, err := svc.DownloadURL(context.Background(), "recFile1")
	require.NoError(t, err)
	assert.Contains(t, url, "files/abc/invoice.pdf")
}

func TestDownloadURL_NoStoredObject(t *testing.T) {
	store := new(mocks.MockRecordStore)
	storage := new(mocks.MockObjectStorage)
	svc := newTestFileService(store, storage)

	store.On("Get", mock.Anything, domain.TableFiles, "recFile1").
		Return(&port.Record{ID: "recFile1", Fields: map[string]any{}}, nil).Once()

	_, err := svc.DownloadURL(context.Background(), "recFile1")
	require.Error(t, err)
	storage.AssertNotCalled(t, "GetPresignedURL")
}
