package port

import "context"

// ReviewAlert describes a file or invoice that needs reviewer attention.
type ReviewAlert struct {
	FileID           string
	FileName         string
	InvoiceNumber    string
	ErrorCode        string
	ErrorDescription string
}

// AlertSender delivers reviewer notifications for records that land in an
// attention or error state.
type AlertSender interface {
	SendAttentionAlert(ctx context.Context, alert ReviewAlert) error
}
