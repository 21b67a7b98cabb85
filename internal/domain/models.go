package domain

import (
	"encoding/json"
	"time"
)

// File represents an uploaded document tracked in the Files table.
type File struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ContentHash      string          `json:"content_hash"`
	OCRText          string          `json:"-"`
	Status           FileStatus      `json:"status"`
	ProcessingStage  ProcessingStage `json:"processing_status"`
	InvoiceIDs       []string        `json:"invoice_ids"`
	ErrorCode        string          `json:"error_code,omitempty"`
	ErrorDescription string          `json:"error_description,omitempty"`
	Cleared          bool            `json:"cleared"`
	StorageKey       string          `json:"-"`
	CreatedTime      time.Time       `json:"created_time"`
}

// Invoice represents one extracted invoice linked to a file.
type Invoice struct {
	ID               string          `json:"id"`
	FileID           string          `json:"file_id"`
	VendorName       string          `json:"vendor_name"`
	VendorID         string          `json:"vendor_id"`
	InvoiceNumber    string          `json:"invoice_number"`
	InvoiceDate      string          `json:"invoice_date"`
	InvoiceAmount    float64         `json:"invoice_amount"`
	FreightAmount    float64         `json:"freight_amount"`
	MiscAmount       float64         `json:"misc_amount"`
	SurchargeAmount  float64         `json:"surcharge_amount"`
	Status           InvoiceStatus   `json:"status"`
	MatchPayloadJSON string          `json:"-"`
	Balance          float64         `json:"balance"`
	WarningsJSON     json.RawMessage `json:"-"`
	HeaderIDs        []string        `json:"po_invoice_headers"`
	ErrorCode        string          `json:"error_code,omitempty"`
	ErrorDescription string          `json:"error_description,omitempty"`
	RetryAfter       *time.Time      `json:"-"`
	CreatedTime      time.Time       `json:"created_time"`
}

// Subtotal is the invoice amount net of freight, misc and surcharge, i.e.
// the portion that should reconcile against matched PO receipt lines.
func (inv *Invoice) Subtotal() float64 {
	return inv.InvoiceAmount - inv.FreightAmount - inv.MiscAmount - inv.SurchargeAmount
}

// MatchPayload is the candidate data assembled for an invoice before
// matching: the resolved vendor's fields and the open receipt lines for
// that vendor. Field keys use the store's hyphenated names so values can
// be copied onto header/detail records without renaming.
type MatchPayload struct {
	Vendor   map[string]any   `json:"vendor,omitempty"`
	Receipts []map[string]any `json:"receipts,omitempty"`
}

// Empty reports whether the payload carries no candidate data at all.
func (p *MatchPayload) Empty() bool {
	return p == nil || (len(p.Vendor) == 0 && len(p.Receipts) == 0)
}

// Warning types persisted in Warnings-JSON.
const (
	WarningLineAmount      = "line_amount"
	WarningMissingReceipts = "missing_receipts"
	WarningAIMatching      = "ai_matching"
)

// Warning is one stored matching warning. Which fields are populated
// depends on Type.
type Warning struct {
	Type            string  `json:"type"`
	Line            int     `json:"line,omitempty"`
	Item            string  `json:"item,omitempty"`
	Lines           []int   `json:"lines,omitempty"`
	Message         string  `json:"message,omitempty"`
	InvoicePrice    float64 `json:"invoice_price,omitempty"`
	POPrice         float64 `json:"po_price,omitempty"`
	InvoiceQuantity float64 `json:"invoice_quantity,omitempty"`
	POQuantity      float64 `json:"po_quantity,omitempty"`
	InvoiceAmount   float64 `json:"invoice_amount,omitempty"`
	POAmount        float64 `json:"po_amount,omitempty"`
}

// ExtractedInvoice is the shape the field-extraction call returns for each
// invoice found in a document's OCR text.
type ExtractedInvoice struct {
	VendorName      string  `json:"vendor_name"`
	InvoiceNumber   string  `json:"invoice_number"`
	InvoiceDate     string  `json:"invoice_date"`
	InvoiceAmount   float64 `json:"invoice_amount"`
	FreightAmount   float64 `json:"freight_amount"`
	MiscAmount      float64 `json:"misc_amount"`
	SurchargeAmount float64 `json:"surcharge_amount"`
}
