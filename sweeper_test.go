package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quillpost/outbox/storage"
)

func TestStuckSweeper_Sweep_ReclaimsStuckEntries(t *testing.T) {
	mockStore := new(storage.MockStore)

	sweeper := NewStuckSweeper(mockStore,
		WithSweeperBatchSize(10),
		WithSweeperMaxRetries(5),
		WithStuckTimeout(10*time.Minute))

	stuck := []storage.EntryRecord{{ID: "entry-1", EventType: "MemberCreatedEvent", RetryCount: 1, Status: storage.StatusProcessing}}

	mockStore.On("FetchStuck", mock.Anything, 10, 10*time.Minute).Return(stuck, nil).Once()
	mockStore.On("ResetStuck", mock.Anything, "entry-1", mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockStore.AssertNotCalled(t, "MarkFailed")
}

func TestStuckSweeper_Sweep_FailsEntriesPastRetryCeiling(t *testing.T) {
	mockStore := new(storage.MockStore)

	sweeper := NewStuckSweeper(mockStore,
		WithSweeperBatchSize(10),
		WithSweeperMaxRetries(5))

	stuck := []storage.EntryRecord{{ID: "entry-1", EventType: "MemberCreatedEvent", RetryCount: 5, Status: storage.StatusProcessing}}

	mockStore.On("FetchStuck", mock.Anything, 10, mock.AnythingOfType("time.Duration")).Return(stuck, nil).Once()
	mockStore.On("MarkFailed", mock.Anything, "entry-1", mock.AnythingOfType("string")).Return(nil).Once()

	err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockStore.AssertNotCalled(t, "ResetStuck")
}

func TestStuckSweeper_Sweep_NothingStuck(t *testing.T) {
	mockStore := new(storage.MockStore)

	sweeper := NewStuckSweeper(mockStore)

	mockStore.On("FetchStuck", mock.Anything, mock.Anything, mock.Anything).Return([]storage.EntryRecord{}, nil).Once()

	err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	mockStore.AssertExpectations(t)
}

func TestStuckSweeper_Sweep_FetchFails(t *testing.T) {
	mockStore := new(storage.MockStore)

	sweeper := NewStuckSweeper(mockStore)

	mockStore.On("FetchStuck", mock.Anything, mock.Anything, mock.Anything).Return([]storage.EntryRecord(nil), errors.New("db gone")).Once()

	err := sweeper.Sweep(context.Background())
	assert.Error(t, err)
}

func TestStuckSweeper_Sweep_MemStoreRoundTrip(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()

	base := time.Now().UTC()
	store.SetClock(func() time.Time { return base })

	require.NoError(t, store.CreateEntry(ctx, nil, &storage.EntryRecord{
		ID: "stuck-1", EventType: "MemberCreatedEvent", Payload: []byte(`{}`), Status: storage.StatusPending,
	}))
	require.NoError(t, store.MarkProcessing(ctx, "stuck-1"))

	// A fresh processing entry is left alone; after the timeout it is
	// reclaimed to pending.
	sweeper := NewStuckSweeper(store, WithStuckTimeout(10*time.Minute))

	require.NoError(t, sweeper.Sweep(ctx))
	rec, _ := store.Entry("stuck-1")
	assert.Equal(t, storage.StatusProcessing, rec.Status)

	store.SetClock(func() time.Time { return base.Add(11 * time.Minute) })
	require.NoError(t, sweeper.Sweep(ctx))
	rec, _ = store.Entry("stuck-1")
	assert.Equal(t, storage.StatusPending, rec.Status)
	assert.NotNil(t, rec.NextAttemptAt)
}
