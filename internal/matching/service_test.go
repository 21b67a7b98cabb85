package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payables/internal/domain"
	"payables/internal/extract"
	"payables/internal/port"
	"payables/mocks"
)

func invoiceRecordFixture(payload *domain.MatchPayload) *port.Record {
	payloadJSON, _ := json.Marshal(payload)
	return &port.Record{
		ID: "inv1",
		Fields: map[string]any{
			domain.FieldVendorName:       "Acme Industrial",
			domain.FieldInvoiceNumber:    "INV-100",
			domain.FieldInvoiceDate:      "2026-07-15",
			domain.FieldInvoiceAmount:    377.0,
			domain.FieldFreightAmount:    2.0,
			domain.FieldInvoiceStatus:    string(domain.InvoiceStatusPending),
			domain.FieldMatchPayloadJSON: string(payloadJSON),
		},
	}
}

func matchResponseJSON(t *testing.T, resp MatchResponse) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	return raw
}

func TestMatchInvoice_Success(t *testing.T) {
	store := new(mocks.MockRecordStore)
	extractor := new(mocks.MockStructuredExtractor)
	svc := NewService(store, extractor)

	payload := matchPayloadFixture()
	store.On("Get", mock.Anything, domain.TableInvoices, "inv1").
		Return(invoiceRecordFixture(payload), nil).Once()

	resp := MatchResponse{
		Headers: []MatchHeader{{
			PONumber: "PO-5001",
			Details: [][]MatchObject{
				{{MatchObject: 0, InvoicePrice: 2.50, InvoiceQuantity: 100, InvoiceAmount: 250}},
				{{MatchObject: 1, InvoicePrice: 1.25, InvoiceQuantity: 100, InvoiceAmount: 125}},
			},
		}},
	}
	extractor.On("Extract", mock.Anything, mock.MatchedBy(func(in port.ExtractInput) bool {
		return in.SchemaName == MatchSchemaName && in.Strict
	})).Return(&port.ExtractOutput{Content: matchResponseJSON(t, resp)}, nil).Once()

	store.On("Create", mock.Anything, domain.TableHeaders, mock.Anything).
		Return(createdRecords("hdr", 1), nil).Once()
	store.On("Create", mock.Anything, domain.TableDetails, mock.Anything).
		Return(createdRecords("det", 2), nil).Once()

	var patch port.RecordPatch
	store.On("Update", mock.Anything, domain.TableInvoices, mock.Anything).
		Run(func(args mock.Arguments) { patch = args.Get(2).([]port.RecordPatch)[0] }).
		Return([]port.Record{{ID: "inv1"}}, nil).Once()

	require.NoError(t, svc.MatchInvoice(context.Background(), "inv1"))

	assert.Equal(t, "inv1", patch.ID)
	assert.Equal(t, string(domain.InvoiceStatusMatched), patch.Fields[domain.FieldInvoiceStatus])
	assert.Equal(t, []string{"hdr1"}, patch.Fields[domain.FieldInvoiceHeaders])
	// Subtotal 375 against 2.50*100 + 1.25*100 = 375, balance zero.
	assert.Equal(t, 0.0, patch.Fields[domain.FieldBalance])
	assert.Equal(t, "[]", patch.Fields[domain.FieldWarningsJSON])
	assert.Equal(t, "", patch.Fields[domain.FieldErrorCode])

	store.AssertExpectations(t)
	extractor.AssertExpectations(t)
}

func TestMatchInvoice_SkipsAlreadyMatched(t *testing.T) {
	store := new(mocks.MockRecordStore)
	extractor := new(mocks.MockStructuredExtractor)
	svc := NewService(store, extractor)

	rec := invoiceRecordFixture(matchPayloadFixture())
	rec.Fields[domain.FieldInvoiceStatus] = string(domain.InvoiceStatusMatched)
	rec.Fields[domain.FieldInvoiceHeaders] = []string{"hdr1"}
	store.On("Get", mock.Anything, domain.TableInvoices, "inv1").Return(rec, nil).Once()

	require.NoError(t, svc.MatchInvoice(context.Background(), "inv1"))
	extractor.AssertNotCalled(t, "Extract")
	store.AssertNotCalled(t, "Update")
}

func TestMatchInvoice_RetryAfterPartialMaterializeRematches(t *testing.T) {
	store := new(mocks.MockRecordStore)
	extractor := new(mocks.MockStructuredExtractor)
	svc := NewService(store, extractor)

	// A prior run created one header, failed on its details and linked the
	// partial header; the invoice has since been reset to Pending.
	rec := invoiceRecordFixture(matchPayloadFixture())
	rec.Fields[domain.FieldInvoiceHeaders] = []string{"hdrStale"}
	store.On("Get", mock.Anything, domain.TableInvoices, "inv1").Return(rec, nil).Once()

	resp := MatchResponse{
		Headers: []MatchHeader{{
			PONumber: "PO-5001",
			Details: [][]MatchObject{
				{{MatchObject: 0, InvoicePrice: 2.50, InvoiceQuantity: 100, InvoiceAmount: 250}},
				{{MatchObject: 1, InvoicePrice: 1.25, InvoiceQuantity: 100, InvoiceAmount: 125}},
			},
		}},
	}
	extractor.On("Extract", mock.Anything, mock.Anything).
		Return(&port.ExtractOutput{Content: matchResponseJSON(t, resp)}, nil).Once()

	store.On("Create", mock.Anything, domain.TableHeaders, mock.Anything).
		Return(createdRecords("hdr", 1), nil).Once()
	store.On("Create", mock.Anything, domain.TableDetails, mock.Anything).
		Return(createdRecords("det", 2), nil).Once()

	var patches []port.RecordPatch
	store.On("Update", mock.Anything, domain.TableInvoices, mock.Anything).
		Run(func(args mock.Arguments) { patches = append(patches, args.Get(2).([]port.RecordPatch)[0]) }).
		Return([]port.Record{{ID: "inv1"}}, nil).Twice()

	require.NoError(t, svc.MatchInvoice(context.Background(), "inv1"))

	// First update drops the stale link, second settles the fresh match.
	require.Len(t, patches, 2)
	assert.Equal(t, []string{}, patches[0].Fields[domain.FieldInvoiceHeaders])
	assert.Equal(t, string(domain.InvoiceStatusMatched), patches[1].Fields[domain.FieldInvoiceStatus])
	assert.Equal(t, []string{"hdr1"}, patches[1].Fields[domain.FieldInvoiceHeaders])
	extractor.AssertExpectations(t)
}

func TestMatchInvoice_RateLimitSetsRetryAfter(t *testing.T) {
	store := new(mocks.MockRecordStore)
	extractor := new(mocks.MockStructuredExtractor)
	svc := NewService(store, extractor)

	store.On("Get", mock.Anything, domain.TableInvoices, "inv1").
		Return(invoiceRecordFixture(matchPayloadFixture()), nil).Once()
	extractor.On("Extract", mock.Anything, mock.Anything).
		Return(nil, extract.NewRateLimitError("openai", fmt.Errorf("429"), 30)).Once()

	var patch port.RecordPatch
	store.On("Update", mock.Anything, domain.TableInvoices, mock.Anything).
		Run(func(args mock.Arguments) { patch = args.Get(2).([]port.RecordPatch)[0] }).
		Return([]port.Record{{ID: "inv1"}}, nil).Once()

	err := svc.MatchInvoice(context.Background(), "inv1")
	require.Error(t, err)

	var rateLimitErr *extract.RateLimitError
	assert.True(t, errors.As(err, &rateLimitErr))

	retryAt, perr := time.Parse(time.RFC3339, patch.Fields[domain.FieldRetryAfter].(string))
	require.NoError(t, perr)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), retryAt, 5*time.Second)
	// The invoice stays Pending; no error code is written.
	assert.NotContains(t, patch.Fields, domain.FieldInvoiceStatus)
	assert.NotContains(t, patch.Fields, domain.FieldErrorCode)
}

func TestMatchInvoice_RefusalMarksError(t *testing.T) {
	store := new(mocks.MockRecordStore)
	extractor := new(mocks.MockStructuredExtractor)
	svc := NewService(store, extractor)

	store.On("Get", mock.Anything, domain.TableInvoices, "inv1").
		Return(invoiceRecordFixture(matchPayloadFixture()), nil).Once()
	extractor.On("Extract", mock.Anything, mock.Anything).
		Return(nil, &extract.RefusalError{Provider: "openai", Refusal: "cannot process"}).Once()

	var patch port.RecordPatch
	store.On("Update", mock.Anything, domain.TableInvoices, mock.Anything).
		Run(func(args mock.Arguments) { patch = args.Get(2).([]port.RecordPatch)[0] }).
		Return([]port.Record{{ID: "inv1"}}, nil).Once()

	require.Error(t, svc.MatchInvoice(context.Background(), "inv1"))
	assert.Equal(t, string(domain.InvoiceStatusError), patch.Fields[domain.FieldInvoiceStatus])
	assert.Equal(t, domain.ErrCodeMatchRefused, patch.Fields[domain.FieldErrorCode])
}

func TestMatchInvoice_MaterializeFailureLinksPartialHeaders(t *testing.T) {
	store := new(mocks.MockRecordStore)
	extractor := new(mocks.MockStructuredExtractor)
	svc := NewService(store, extractor)

	store.On("Get", mock.Anything, domain.TableInvoices, "inv1").
		Return(invoiceRecordFixture(matchPayloadFixture()), nil).Once()

	resp := MatchResponse{
		Headers: []MatchHeader{{
			PONumber: "PO-5001",
			Details:  [][]MatchObject{{{MatchObject: 0, InvoicePrice: 2.50, InvoiceQuantity: 100, InvoiceAmount: 250}}},
		}},
	}
	extractor.On("Extract", mock.Anything, mock.Anything).
		Return(&port.ExtractOutput{Content: matchResponseJSON(t, resp)}, nil).Once()

	store.On("Create", mock.Anything, domain.TableHeaders, mock.Anything).
		Return(createdRecords("hdr", 1), nil).Once()
	store.On("Create", mock.Anything, domain.TableDetails, mock.Anything).
		Return(nil, fmt.Errorf("store unavailable")).Once()

	var patch port.RecordPatch
	store.On("Update", mock.Anything, domain.TableInvoices, mock.Anything).
		Run(func(args mock.Arguments) { patch = args.Get(2).([]port.RecordPatch)[0] }).
		Return([]port.Record{{ID: "inv1"}}, nil).Once()

	require.Error(t, svc.MatchInvoice(context.Background(), "inv1"))
	assert.Equal(t, domain.ErrCodeStoreFailed, patch.Fields[domain.FieldErrorCode])
	assert.Equal(t, []string{"hdr1"}, patch.Fields[domain.FieldInvoiceHeaders])
}

func TestComputeBalance_SkipsUnresolvedDetails(t *testing.T) {
	inv := &domain.Invoice{InvoiceAmount: 380, FreightAmount: 5}
	details := []map[string]any{
		{domain.FieldPurchasePrice: 2.50, domain.FieldQuantityInvoiced: 100.0},
		{domain.FieldQuantityInvoiced: 50.0}, // no receipt resolved
		{domain.FieldPurchasePrice: 1.25, domain.FieldQuantityInvoiced: 100.0},
	}
	assert.Equal(t, 0.0, ComputeBalance(inv, details))
}

func TestDeriveWarnings(t *testing.T) {
	payload := matchPayloadFixture()

	resp := &MatchResponse{
		Headers: []MatchHeader{{
			Details: [][]MatchObject{
				{{MatchObject: 0, InvoicePrice: 9.99, InvoiceQuantity: 100, InvoiceAmount: 999}},
				{},
				{{MatchObject: 42, InvoicePrice: 1, InvoiceQuantity: 1, InvoiceAmount: 1}},
			},
		}},
		Error: "line 2 had no valid receipt",
	}

	warnings := deriveWarnings(resp, payload)
	require.Len(t, warnings, 3)

	assert.Equal(t, domain.WarningLineAmount, warnings[0].Type)
	assert.Equal(t, 1, warnings[0].Line)
	assert.Equal(t, "BOLT-10", warnings[0].Item)
	assert.Equal(t, 9.99, warnings[0].InvoicePrice)
	assert.Equal(t, 2.50, warnings[0].POPrice)

	assert.Equal(t, domain.WarningMissingReceipts, warnings[1].Type)
	assert.Equal(t, []int{2, 3}, warnings[1].Lines)

	assert.Equal(t, domain.WarningAIMatching, warnings[2].Type)
	assert.Equal(t, "line 2 had no valid receipt", warnings[2].Message)
}

func TestDeriveWarnings_CleanMatch(t *testing.T) {
	payload := matchPayloadFixture()
	resp := &MatchResponse{
		Headers: []MatchHeader{{
			Details: [][]MatchObject{
				{{MatchObject: 0, InvoicePrice: 2.50, InvoiceQuantity: 100, InvoiceAmount: 250}},
			},
		}},
	}
	assert.Empty(t, deriveWarnings(resp, payload))
}
