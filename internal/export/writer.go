// Package export renders queued invoices with their matched header and
// detail records into an Excel workbook for the downstream AP system.
package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"payables/internal/domain"
	"payables/internal/port"
)

const (
	headerSheet = "Headers"
	detailSheet = "Details"
)

// headerColumns defines the Headers sheet columns.
var headerColumns = []string{
	"Invoice Number",
	"Vendor Name",
	"Vendor Id",
	"PO Number",
	"Company Code",
	"Terms",
	"Currency",
	"Account",
	"Sub Account",
	"Job Number",
	"Operator",
	"Invoice Amount",
	"Balance",
}

// detailColumns defines the Details sheet columns.
var detailColumns = []string{
	"Invoice Number",
	"Header Id",
	"Item Number",
	"Item Description",
	"Invoice Price",
	"Quantity Invoiced",
	"Line Amount",
	"PO Line Number",
	"Release Number",
	"Vendor Ship Number",
	"Date Received",
	"Quantity Received",
	"Quantity Accepted",
	"Purchase Price",
	"Expense Account",
	"Expense Sub Account",
	"Standard Cost",
	"Surcharge",
	"Unit Of Measure",
	"PPV Account",
	"PPV Sub Account",
	"Job Number",
}

// InvoiceExport bundles one queued invoice with its matched records.
type InvoiceExport struct {
	Invoice domain.Invoice
	Headers []port.Record
	Details []port.Record
}

// BuildWorkbook renders the batch into a two-sheet workbook: one row per
// header record and one row per detail record.
func BuildWorkbook(batch []InvoiceExport) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", headerSheet)
	if _, err := f.NewSheet(detailSheet); err != nil {
		return nil, fmt.Errorf("creating details sheet: %w", err)
	}

	if err := f.SetSheetRow(headerSheet, "A1", &headerColumns); err != nil {
		return nil, fmt.Errorf("writing header columns: %w", err)
	}
	if err := f.SetSheetRow(detailSheet, "A1", &detailColumns); err != nil {
		return nil, fmt.Errorf("writing detail columns: %w", err)
	}

	headerRow := 2
	detailRow := 2
	for i := range batch {
		inv := &batch[i].Invoice
		for _, rec := range batch[i].Headers {
			row := headerToRow(inv, rec)
			if err := f.SetSheetRow(headerSheet, fmt.Sprintf("A%d", headerRow), &row); err != nil {
				return nil, fmt.Errorf("writing header row %d: %w", headerRow, err)
			}
			headerRow++
		}
		for _, rec := range batch[i].Details {
			row := detailToRow(inv, rec)
			if err := f.SetSheetRow(detailSheet, fmt.Sprintf("A%d", detailRow), &row); err != nil {
				return nil, fmt.Errorf("writing detail row %d: %w", detailRow, err)
			}
			detailRow++
		}
	}

	return f, nil
}

func headerToRow(inv *domain.Invoice, rec port.Record) []any {
	return []any{
		inv.InvoiceNumber,
		inv.VendorName,
		domain.FieldString(rec.Fields, domain.FieldVendorID),
		domain.FieldString(rec.Fields, domain.FieldPONumber),
		domain.FieldString(rec.Fields, domain.FieldCompanyCode),
		domain.FieldString(rec.Fields, domain.FieldTerms),
		domain.FieldString(rec.Fields, domain.FieldCurrency),
		domain.FieldString(rec.Fields, domain.FieldAccount),
		domain.FieldString(rec.Fields, domain.FieldSubAccount),
		domain.FieldString(rec.Fields, domain.FieldJobNumber),
		domain.FieldString(rec.Fields, domain.FieldOperator),
		inv.InvoiceAmount,
		inv.Balance,
	}
}

func detailToRow(inv *domain.Invoice, rec port.Record) []any {
	headerID := ""
	if links := domain.FieldStrings(rec.Fields, domain.FieldDetailHeader); len(links) > 0 {
		headerID = links[0]
	}
	return []any{
		inv.InvoiceNumber,
		headerID,
		domain.FieldString(rec.Fields, domain.FieldItemNumber),
		domain.FieldString(rec.Fields, domain.FieldItemDescription),
		domain.FieldFloat(rec.Fields, domain.FieldInvoicePrice),
		domain.FieldFloat(rec.Fields, domain.FieldQuantityInvoiced),
		domain.FieldFloat(rec.Fields, domain.FieldLineAmount),
		domain.FieldString(rec.Fields, domain.FieldPOLineNumber),
		domain.FieldString(rec.Fields, domain.FieldReleaseNumber),
		domain.FieldString(rec.Fields, domain.FieldVendorShipNumber),
		domain.FieldString(rec.Fields, domain.FieldDateReceived),
		domain.FieldFloat(rec.Fields, domain.FieldQuantityReceived),
		domain.FieldFloat(rec.Fields, domain.FieldQuantityAccepted),
		domain.FieldFloat(rec.Fields, domain.FieldPurchasePrice),
		domain.FieldString(rec.Fields, domain.FieldExpenseAccount),
		domain.FieldString(rec.Fields, domain.FieldExpenseSubAccount),
		domain.FieldFloat(rec.Fields, domain.FieldStandardCost),
		domain.FieldFloat(rec.Fields, domain.FieldSurcharge),
		domain.FieldString(rec.Fields, domain.FieldUnitOfMeasure),
		domain.FieldString(rec.Fields, domain.FieldPPVAccount),
		domain.FieldString(rec.Fields, domain.FieldPPVSubAccount),
		domain.FieldString(rec.Fields, domain.FieldJobNumber),
	}
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in object keys and
// Content-Disposition headers. Replaces non-alphanumeric chars (except
// - _) with _, collapses consecutive underscores, and truncates to 100
// chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns the export workbook filename.
// Format: {sanitized_prefix}_{YYYY-MM-DD}.xlsx
func BuildFilename(prefix string) string {
	sanitized := SanitizeFilename(prefix)
	if sanitized == "" {
		sanitized = "payables_export"
	}
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_%s.xlsx", sanitized, date)
}
