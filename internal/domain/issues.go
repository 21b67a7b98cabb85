package domain

// IssueType classifies a derived reconciliation problem.
type IssueType string

const (
	IssuePriceVariance    IssueType = "price-variance"
	IssueUnmatchedItem    IssueType = "unmatched-item"
	IssueQuantityMismatch IssueType = "quantity-mismatch"
	IssueMissingPO        IssueType = "missing-po"
	// IssueMatchNote carries the matching model's free-text note, which
	// may describe any kind of concern and is not classified further.
	IssueMatchNote IssueType = "match-note"
)

// DetailedIssue is a derived view of one reconciliation problem on an
// invoice. Issues are never stored; they are regenerated on every read
// from the invoice's Balance and Warnings-JSON.
type DetailedIssue struct {
	Type            IssueType `json:"type"`
	Line            int       `json:"line,omitempty"`
	Item            string    `json:"item,omitempty"`
	Description     string    `json:"description"`
	Impact          string    `json:"impact,omitempty"`
	InvoiceValue    float64   `json:"invoice_value,omitempty"`
	POValue         float64   `json:"po_value,omitempty"`
	InvoiceQuantity float64   `json:"invoice_quantity,omitempty"`
	POQuantity      float64   `json:"po_quantity,omitempty"`
}
