package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"payables/internal/port"
)

// MockAlertSender is a mock implementation of port.AlertSender.
type MockAlertSender struct {
	mock.Mock
}

func (m *MockAlertSender) SendAttentionAlert(ctx context.Context, alert port.ReviewAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}
