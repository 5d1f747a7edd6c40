package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is the unit of durable work handed to a Handler.
type Entry struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	Status     string          `json:"status"`
	RetryCount int             `json:"retry_count"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Handler executes the side effect associated with one event type.
//
// Handlers must be idempotent: delivery is at least once, so the same entry
// may be handed to a handler more than once across dispatch passes.
type Handler interface {
	Handle(ctx context.Context, entry Entry) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, entry Entry) error

func (f HandlerFunc) Handle(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// Summary reports the outcome of one dispatch pass.
type Summary struct {
	Fetched   int
	Completed int
	Requeued  int
	Failed    int
}
