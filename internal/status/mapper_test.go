package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"payables/internal/domain"
)

func TestProgress(t *testing.T) {
	assert.Equal(t, 10, Progress(domain.StageUploadReceived))
	assert.Equal(t, 25, Progress(domain.StageDocumentDetection))
	assert.Equal(t, 45, Progress(domain.StageParsing))
	assert.Equal(t, 65, Progress(domain.StageInvoiceLinking))
	assert.Equal(t, 85, Progress(domain.StagePOMatching))
	assert.Equal(t, 100, Progress(domain.StageMatched))
	assert.Equal(t, 100, Progress(domain.StageError))
	assert.Equal(t, 0, Progress(""))
}

func TestHasCaveats(t *testing.T) {
	matched := domain.InvoiceStatusMatched

	assert.False(t, HasCaveats(&domain.Invoice{Status: matched}))
	assert.True(t, HasCaveats(&domain.Invoice{Status: matched, Balance: -3.14}))
	assert.True(t, HasCaveats(&domain.Invoice{Status: matched, WarningsJSON: json.RawMessage(`[{"type":"ai_matching"}]`)}))
	// Empty warning array is not a caveat.
	assert.False(t, HasCaveats(&domain.Invoice{Status: matched, WarningsJSON: json.RawMessage(`[]`)}))
	// Non-matched invoices never report caveats.
	assert.False(t, HasCaveats(&domain.Invoice{Status: domain.InvoiceStatusPending, Balance: 10}))
}

func TestMapFileStatus_DuplicateWinsOverEverything(t *testing.T) {
	file := &domain.File{
		ErrorCode:       domain.ErrCodeDuplicate,
		Status:          domain.FileStatusAttention,
		ProcessingStage: domain.StageError,
	}
	invoices := []domain.Invoice{{Status: domain.InvoiceStatusError}}
	assert.Equal(t, domain.UIStatusDuplicate, MapFileStatus(file, invoices))
}

func TestMapFileStatus_ErrorBeatsExported(t *testing.T) {
	file := &domain.File{Status: domain.FileStatusProcessed, ProcessingStage: domain.StageMatched}
	invoices := []domain.Invoice{
		{Status: domain.InvoiceStatusExported},
		{Status: domain.InvoiceStatusError},
	}
	assert.Equal(t, domain.UIStatusError, MapFileStatus(file, invoices))
}

func TestMapFileStatus_FileAttentionIsError(t *testing.T) {
	file := &domain.File{Status: domain.FileStatusAttention, ProcessingStage: domain.StageError}
	assert.Equal(t, domain.UIStatusError, MapFileStatus(file, nil))
}

func TestMapFileStatus_AllExported(t *testing.T) {
	file := &domain.File{Status: domain.FileStatusProcessed, ProcessingStage: domain.StageMatched}
	invoices := []domain.Invoice{
		{Status: domain.InvoiceStatusExported},
		{Status: domain.InvoiceStatusExported},
	}
	assert.Equal(t, domain.UIStatusExported, MapFileStatus(file, invoices))
}

func TestMapFileStatus_PartialExportWithCaveats(t *testing.T) {
	// One invoice exported, one matched with a warning: caveats win over
	// the raw stage but exported needs every invoice.
	file := &domain.File{Status: domain.FileStatusProcessed, ProcessingStage: domain.StageMatched}
	invoices := []domain.Invoice{
		{Status: domain.InvoiceStatusExported},
		{Status: domain.InvoiceStatusMatched, WarningsJSON: json.RawMessage(`[{"type":"line_amount"}]`)},
	}
	assert.Equal(t, domain.UIStatusSuccessCaveats, MapFileStatus(file, invoices))
}

func TestMapFileStatus_NoInvoicesNeverExported(t *testing.T) {
	file := &domain.File{Status: domain.FileStatusProcessed, ProcessingStage: domain.StageMatched}
	assert.Equal(t, domain.UIStatusSuccess, MapFileStatus(file, nil))
}

func TestMapFileStatus_StageFallback(t *testing.T) {
	cases := []struct {
		status domain.FileStatus
		stage  domain.ProcessingStage
		want   domain.UIStatus
	}{
		{domain.FileStatusQueued, domain.StageUploadReceived, domain.UIStatusQueued},
		{domain.FileStatusProcessing, domain.StageUploadReceived, domain.UIStatusUploading},
		{domain.FileStatusProcessing, domain.StageDocumentDetection, domain.UIStatusProcessing},
		{domain.FileStatusProcessing, domain.StageParsing, domain.UIStatusProcessing},
		{domain.FileStatusProcessing, domain.StageInvoiceLinking, domain.UIStatusProcessing},
		{domain.FileStatusProcessing, domain.StagePOMatching, domain.UIStatusConnecting},
		{domain.FileStatusProcessed, domain.StageMatched, domain.UIStatusSuccess},
		{domain.FileStatusProcessing, "", domain.UIStatusProcessing},
	}
	for _, tc := range cases {
		file := &domain.File{Status: tc.status, ProcessingStage: tc.stage}
		assert.Equal(t, tc.want, MapFileStatus(file, nil), "status %s stage %s", tc.status, tc.stage)
	}
}
