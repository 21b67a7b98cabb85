package noop

import (
	"context"
	"log"

	"payables/internal/port"
)

type noopSender struct{}

// NewNoopSender creates a no-op AlertSender that logs alerts to stdout.
func NewNoopSender() port.AlertSender {
	return &noopSender{}
}

func (s *noopSender) SendAttentionAlert(_ context.Context, alert port.ReviewAlert) error {
	log.Printf("[NOOP EMAIL] Attention alert for file %s (%s): %s - %s",
		alert.FileName, alert.FileID, alert.ErrorCode, alert.ErrorDescription)
	return nil
}
