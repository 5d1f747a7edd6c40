package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillpost/outbox/storage"
)

// Enqueuer records outbox entries and raises the processing signal. Enqueue
// should be called with the same transaction that records the domain fact,
// so the event can never be lost once the fact is committed.
type Enqueuer struct {
	store  storage.Store
	bus    *SignalBus
	logger *zap.Logger
}

// NewEnqueuer creates an enqueuer over the given store.
func NewEnqueuer(store storage.Store, opts ...EnqueuerOption) *Enqueuer {
	e := &Enqueuer{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Enqueue persists a new pending entry within the given transaction and, on
// success, publishes the processing signal. It returns the new entry's id.
func (e *Enqueuer) Enqueue(ctx context.Context, tx storage.DBTX, eventType string, payload interface{}) (string, error) {
	if eventType == "" {
		return "", &storage.ValidationError{Field: "outbox.event_type", Message: "event type is required"}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", &storage.ValidationError{Field: "outbox.payload", Message: fmt.Sprintf("payload is not serializable: %v", err)}
	}

	entry := &storage.EntryRecord{
		ID:         uuid.NewString(),
		EventType:  eventType,
		Payload:    payloadJSON,
		Status:     storage.StatusPending,
		RetryCount: 0,
		CreatedAt:  time.Now().UTC(),
	}

	if err := e.store.CreateEntry(ctx, tx, entry); err != nil {
		return "", fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}

	e.logger.Debug("Outbox entry enqueued",
		zap.String("entry_id", entry.ID),
		zap.String("event_type", eventType))

	if e.bus != nil {
		e.bus.Publish()
	}
	return entry.ID, nil
}
