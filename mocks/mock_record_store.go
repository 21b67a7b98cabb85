package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"payables/internal/port"
)

// MockRecordStore is a mock implementation of port.RecordStore.
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Get(ctx context.Context, table, id string) (*port.Record, error) {
	args := m.Called(ctx, table, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.Record), args.Error(1)
}

func (m *MockRecordStore) List(ctx context.Context, table string, q port.Query) ([]port.Record, error) {
	args := m.Called(ctx, table, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]port.Record), args.Error(1)
}

func (m *MockRecordStore) Create(ctx context.Context, table string, fields []map[string]any) ([]port.Record, error) {
	args := m.Called(ctx, table, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]port.Record), args.Error(1)
}

func (m *MockRecordStore) Update(ctx context.Context, table string, patches []port.RecordPatch) ([]port.Record, error) {
	args := m.Called(ctx, table, patches)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]port.Record), args.Error(1)
}
