package matching

// MatchObject associates one invoice line with one receipt candidate.
// MatchObject is a positional index into the payload's receipt array and
// must be bounds-checked before use.
type MatchObject struct {
	MatchObject     int     `json:"match_object"`
	InvoicePrice    float64 `json:"invoice_price"`
	InvoiceQuantity float64 `json:"invoice_quantity"`
	InvoiceAmount   float64 `json:"invoice_amount"`
}

// MatchHeader is one matched purchase order. Details holds one inner
// array per invoice line; an empty inner array means the line found no
// receipt.
type MatchHeader struct {
	PONumber string          `json:"po_number"`
	Details  [][]MatchObject `json:"details"`
}

// MatchResponse is the shape the matching call must return. Error carries
// concise notes about lines that could not be matched; partial success is
// the default outcome.
type MatchResponse struct {
	Headers []MatchHeader `json:"headers"`
	Error   string        `json:"error"`
}
