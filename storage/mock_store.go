package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the Store interface for testing.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateEntry(ctx context.Context, tx DBTX, entry *EntryRecord) error {
	args := m.Called(ctx, tx, entry)
	return args.Error(0)
}

func (m *MockStore) FetchPending(ctx context.Context, limit int) ([]EntryRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]EntryRecord), args.Error(1)
}

func (m *MockStore) MarkProcessing(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) MarkCompleted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) MarkFailed(ctx context.Context, id string, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

func (m *MockStore) IncrementRetryAndRequeue(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	args := m.Called(ctx, id, nextAttemptAt, lastError)
	return args.Error(0)
}

func (m *MockStore) FetchStuck(ctx context.Context, limit int, stuckTimeout time.Duration) ([]EntryRecord, error) {
	args := m.Called(ctx, limit, stuckTimeout)
	return args.Get(0).([]EntryRecord), args.Error(1)
}

func (m *MockStore) ResetStuck(ctx context.Context, id string, nextAttemptAt time.Time) error {
	args := m.Called(ctx, id, nextAttemptAt)
	return args.Error(0)
}
