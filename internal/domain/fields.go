package domain

import "time"

// Store table names. The tables and their hyphenated field identifiers are
// a wire contract shared with the upstream base; renaming any of them is a
// breaking change.
const (
	TableFiles    = "Files"
	TableInvoices = "Invoices"
	TableHeaders  = "PO-Invoice-Headers"
	TableDetails  = "PO-Invoice-Details"
	TableReceipts = "PO-Receipts"
	TableVendors  = "Vendors"
)

// Files fields.
const (
	FieldFileName         = "Name"
	FieldContentHash      = "Content-Hash"
	FieldOCRText          = "OCR-Text"
	FieldFileStatus       = "Status"
	FieldProcessingStatus = "Processing-Status"
	FieldFileInvoices     = "Invoices"
	FieldErrorCode        = "Error-Code"
	FieldErrorDescription = "Error-Description"
	FieldCleared          = "Cleared"
	FieldStorageKey       = "Storage-Key"
)

// Invoices fields.
const (
	FieldInvoiceFile      = "File"
	FieldVendorName       = "Vendor-Name"
	FieldVendorID         = "Vendor-Id"
	FieldInvoiceNumber    = "Invoice-Number"
	FieldInvoiceDate      = "Invoice-Date"
	FieldInvoiceAmount    = "Invoice-Amount"
	FieldFreightAmount    = "Freight-Amount"
	FieldMiscAmount       = "Misc-Amount"
	FieldSurchargeAmount  = "Surcharge-Amount"
	FieldInvoiceStatus    = "Status"
	FieldMatchPayloadJSON = "Match-Payload-JSON"
	FieldBalance          = "Balance"
	FieldWarningsJSON     = "Warnings-JSON"
	FieldInvoiceHeaders   = "PO-Invoice-Headers"
	FieldRetryAfter       = "Retry-After"
	FieldMatchAttempts    = "Match-Attempts"
	FieldExportedAt       = "Exported-At"
)

// PO-Invoice-Headers / PO-Invoice-Details fields (shared names carry the
// same meaning on both tables and on PO-Receipts).
const (
	FieldHeaderInvoice     = "Invoice"
	FieldCompanyCode       = "Company-Code"
	FieldTerms             = "Terms"
	FieldCurrency          = "Currency"
	FieldAccount           = "Account"
	FieldSubAccount        = "Sub-Account"
	FieldPONumber          = "PO-Number"
	FieldJobNumber         = "Job-Number"
	FieldOperator          = "Operator"
	FieldDetailHeader      = "Header"
	FieldItemNumber        = "Item-Number"
	FieldItemDescription   = "Item-Description"
	FieldInvoicePrice      = "Invoice-Price"
	FieldQuantityInvoiced  = "Quantity-Invoiced"
	FieldLineAmount        = "Line-Amount"
	FieldPOLineNumber      = "PO-Line-Number"
	FieldReleaseNumber     = "Release-Number"
	FieldVendorShipNumber  = "Vendor-Ship-Number"
	FieldDateReceived      = "Date-Received"
	FieldQuantityReceived  = "Quantity-Received"
	FieldQuantityAccepted  = "Quantity-Accepted"
	FieldPurchasePrice     = "Purchase-Price"
	FieldExpenseAccount    = "Expense-Account"
	FieldExpenseSubAccount = "Expense-Sub-Account"
	FieldStandardCost      = "Standard-Cost"
	FieldSurcharge         = "Surcharge"
	FieldUnitOfMeasure     = "Unit-Of-Measure"
	FieldPPVAccount        = "PPV-Account"
	FieldPPVSubAccount     = "PPV-Sub-Account"
)

// HeaderWritableFields is the exhaustive set of fields this system may
// write on PO-Invoice-Headers. CuryMultDiv exists upstream but is
// deliberately absent.
var HeaderWritableFields = map[string]bool{
	FieldHeaderInvoice: true,
	FieldCompanyCode:   true,
	FieldVendorID:      true,
	FieldTerms:         true,
	FieldCurrency:      true,
	FieldAccount:       true,
	FieldSubAccount:    true,
	FieldPONumber:      true,
	FieldJobNumber:     true,
	FieldOperator:      true,
}

// DetailWritableFields is the exhaustive set of fields this system may
// write on PO-Invoice-Details.
var DetailWritableFields = map[string]bool{
	FieldDetailHeader:      true,
	FieldItemNumber:        true,
	FieldItemDescription:   true,
	FieldInvoicePrice:      true,
	FieldQuantityInvoiced:  true,
	FieldLineAmount:        true,
	FieldPOLineNumber:      true,
	FieldReleaseNumber:     true,
	FieldVendorShipNumber:  true,
	FieldDateReceived:      true,
	FieldQuantityReceived:  true,
	FieldQuantityAccepted:  true,
	FieldPurchasePrice:     true,
	FieldExpenseAccount:    true,
	FieldExpenseSubAccount: true,
	FieldStandardCost:      true,
	FieldSurcharge:         true,
	FieldUnitOfMeasure:     true,
	FieldPPVAccount:        true,
	FieldPPVSubAccount:     true,
	FieldJobNumber:         true,
}

// FilterWritable drops every key of fields that is not in the table's
// writable whitelist and every nil value, so null overwrites and stray
// model-invented keys never reach the store.
func FilterWritable(fields map[string]any, writable map[string]bool) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil || !writable[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// Accessors for loosely typed record field maps. Numeric store fields may
// arrive as float64 or json.Number-ish strings depending on backend, so
// reads go through these instead of bare type assertions.

func FieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func FieldFloat(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func FieldBool(fields map[string]any, key string) bool {
	if v, ok := fields[key].(bool); ok {
		return v
	}
	return false
}

func FieldStrings(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func FieldTime(fields map[string]any, key string) *time.Time {
	s := FieldString(fields, key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// FileFromFields hydrates a File from a store record's field map.
func FileFromFields(id string, fields map[string]any) *File {
	f := &File{
		ID:               id,
		Name:             FieldString(fields, FieldFileName),
		ContentHash:      FieldString(fields, FieldContentHash),
		OCRText:          FieldString(fields, FieldOCRText),
		Status:           FileStatus(FieldString(fields, FieldFileStatus)),
		ProcessingStage:  ProcessingStage(FieldString(fields, FieldProcessingStatus)),
		InvoiceIDs:       FieldStrings(fields, FieldFileInvoices),
		ErrorCode:        FieldString(fields, FieldErrorCode),
		ErrorDescription: FieldString(fields, FieldErrorDescription),
		Cleared:          FieldBool(fields, FieldCleared),
		StorageKey:       FieldString(fields, FieldStorageKey),
	}
	return f
}

// InvoiceFromFields hydrates an Invoice from a store record's field map.
func InvoiceFromFields(id string, fields map[string]any) *Invoice {
	inv := &Invoice{
		ID:               id,
		VendorName:       FieldString(fields, FieldVendorName),
		VendorID:         FieldString(fields, FieldVendorID),
		InvoiceNumber:    FieldString(fields, FieldInvoiceNumber),
		InvoiceDate:      FieldString(fields, FieldInvoiceDate),
		InvoiceAmount:    FieldFloat(fields, FieldInvoiceAmount),
		FreightAmount:    FieldFloat(fields, FieldFreightAmount),
		MiscAmount:       FieldFloat(fields, FieldMiscAmount),
		SurchargeAmount:  FieldFloat(fields, FieldSurchargeAmount),
		Status:           InvoiceStatus(FieldString(fields, FieldInvoiceStatus)),
		MatchPayloadJSON: FieldString(fields, FieldMatchPayloadJSON),
		Balance:          FieldFloat(fields, FieldBalance),
		HeaderIDs:        FieldStrings(fields, FieldInvoiceHeaders),
		ErrorCode:        FieldString(fields, FieldErrorCode),
		ErrorDescription: FieldString(fields, FieldErrorDescription),
		RetryAfter:       FieldTime(fields, FieldRetryAfter),
	}
	if links := FieldStrings(fields, FieldInvoiceFile); len(links) > 0 {
		inv.FileID = links[0]
	}
	if s := FieldString(fields, FieldWarningsJSON); s != "" {
		inv.WarningsJSON = []byte(s)
	}
	return inv
}
