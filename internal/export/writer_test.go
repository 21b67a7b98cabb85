package export

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payables/internal/domain"
	"payables/internal/port"
)

func TestBuildWorkbook(t *testing.T) {
	batch := []InvoiceExport{{
		Invoice: domain.Invoice{
			InvoiceNumber: "INV-100",
			VendorName:    "Acme Industrial",
			InvoiceAmount: 377,
			Balance:       2,
		},
		Headers: []port.Record{{
			ID: "hdr1",
			Fields: map[string]any{
				domain.FieldVendorID: "V100",
				domain.FieldPONumber: "PO-5001",
				domain.FieldTerms:    "NET30",
				domain.FieldOperator: "AP-AUTOMATION",
			},
		}},
		Details: []port.Record{
			{
				ID: "det1",
				Fields: map[string]any{
					domain.FieldDetailHeader:     []string{"hdr1"},
					domain.FieldItemNumber:       "BOLT-10",
					domain.FieldInvoicePrice:     2.50,
					domain.FieldQuantityInvoiced: 100.0,
					domain.FieldLineAmount:       250.0,
				},
			},
			{
				ID: "det2",
				Fields: map[string]any{
					domain.FieldDetailHeader: []string{"hdr1"},
					domain.FieldItemNumber:   "NUT-10",
				},
			},
		},
	}}

	f, err := BuildWorkbook(batch)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	headerRows, err := f.GetRows("Headers")
	require.NoError(t, err)
	require.Len(t, headerRows, 2)
	assert.Equal(t, "Invoice Number", headerRows[0][0])
	assert.Equal(t, "INV-100", headerRows[1][0])
	assert.Equal(t, "Acme Industrial", headerRows[1][1])
	assert.Equal(t, "V100", headerRows[1][2])
	assert.Equal(t, "PO-5001", headerRows[1][3])
	assert.Equal(t, "AP-AUTOMATION", headerRows[1][10])

	detailRows, err := f.GetRows("Details")
	require.NoError(t, err)
	require.Len(t, detailRows, 3)
	assert.Equal(t, "Item Number", detailRows[0][2])
	assert.Equal(t, "BOLT-10", detailRows[1][2])
	assert.Equal(t, "hdr1", detailRows[1][1])
	assert.Equal(t, "NUT-10", detailRows[2][2])
}

func TestBuildWorkbook_EmptyBatch(t *testing.T) {
	f, err := BuildWorkbook(nil)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	headerRows, err := f.GetRows("Headers")
	require.NoError(t, err)
	assert.Len(t, headerRows, 1)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Acme_Industrial", SanitizeFilename("Acme Industrial"))
	assert.Equal(t, "report_2026", SanitizeFilename("report / 2026!"))
	assert.Equal(t, "a-b_c", SanitizeFilename("a-b_c"))
	assert.Equal(t, "", SanitizeFilename("///"))

	long := ""
	for i := 0; i < 30; i++ {
		long += "abcde"
	}
	assert.Len(t, SanitizeFilename(long), 100)
}

func TestBuildFilename(t *testing.T) {
	date := time.Now().Format("2006-01-02")
	assert.Equal(t, fmt.Sprintf("Acme_Industrial_%s.xlsx", date), BuildFilename("Acme Industrial"))
	assert.Equal(t, fmt.Sprintf("payables_export_%s.xlsx", date), BuildFilename(""))
}
