package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockMatchService is a mock implementation of matching.Service.
type MockMatchService struct {
	mock.Mock
}

func (m *MockMatchService) MatchInvoice(ctx context.Context, invoiceID string) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}
