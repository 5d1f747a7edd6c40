package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpost/outbox/storage"
)

func TestEnqueuer_Enqueue_CreatesPendingEntry(t *testing.T) {
	store := storage.NewMemStore()
	enqueuer := NewEnqueuer(store)

	id, err := enqueuer.Enqueue(context.Background(), nil, "MemberCreatedEvent", map[string]string{
		"memberId": "member-123",
		"email":    "test@example.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, ok := store.Entry(id)
	require.True(t, ok)
	assert.Equal(t, storage.StatusPending, rec.Status)
	assert.Equal(t, 0, rec.RetryCount)
	assert.Equal(t, "MemberCreatedEvent", rec.EventType)
	assert.JSONEq(t, `{"memberId":"member-123","email":"test@example.com"}`, string(rec.Payload))
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestEnqueuer_Enqueue_EmptyEventType(t *testing.T) {
	store := storage.NewMemStore()
	enqueuer := NewEnqueuer(store)

	_, err := enqueuer.Enqueue(context.Background(), nil, "", map[string]string{})
	require.Error(t, err)

	var validationErr *storage.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "outbox.event_type", validationErr.Field)
}

func TestEnqueuer_Enqueue_UnserializablePayload(t *testing.T) {
	store := storage.NewMemStore()
	enqueuer := NewEnqueuer(store)

	_, err := enqueuer.Enqueue(context.Background(), nil, "MemberCreatedEvent", make(chan int))
	require.Error(t, err)

	var validationErr *storage.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "outbox.payload", validationErr.Field)
}

func TestEnqueuer_Enqueue_PublishesSignal(t *testing.T) {
	store := storage.NewMemStore()
	bus := NewSignalBus()

	signalled := make(chan struct{}, 1)
	bus.Subscribe(func() { signalled <- struct{}{} })

	enqueuer := NewEnqueuer(store, WithSignalBus(bus))

	_, err := enqueuer.Enqueue(context.Background(), nil, "MemberCreatedEvent", map[string]string{})
	require.NoError(t, err)

	select {
	case <-signalled:
	case <-time.After(time.Second):
		t.Fatal("expected the enqueue to publish the processing signal")
	}
}

func TestEnqueuer_Enqueue_NoSignalOnRejectedEntry(t *testing.T) {
	store := storage.NewMemStore()
	bus := NewSignalBus()

	signalled := make(chan struct{}, 1)
	bus.Subscribe(func() { signalled <- struct{}{} })

	enqueuer := NewEnqueuer(store, WithSignalBus(bus))

	ctx := context.Background()
	_, err := enqueuer.Enqueue(ctx, nil, "MemberCreatedEvent", map[string]string{})
	require.NoError(t, err)
	<-signalled

	_, err = enqueuer.Enqueue(ctx, nil, "", map[string]string{})
	require.Error(t, err)

	select {
	case <-signalled:
		t.Fatal("signal must not be published for a rejected entry")
	case <-time.After(50 * time.Millisecond):
	}
}
