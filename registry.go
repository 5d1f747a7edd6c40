package outbox

import (
	"errors"
	"fmt"
	"sync"
)

// ErrHandlerNotFound is returned by Registry.Resolve when no handler is
// registered for an event type. A missing handler is a configuration error,
// not a transient failure, and is never retried.
var ErrHandlerNotFound = errors.New("no handler registered")

// Registry maps event type names to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register associates an event type with a handler. Re-registering the same
// event type overwrites the previous handler, which lets a versioned handler
// replace its predecessor at startup.
func (r *Registry) Register(eventType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = handler
}

// Resolve returns the handler registered for the given event type.
func (r *Registry) Resolve(eventType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[eventType]
	if !ok {
		return nil, fmt.Errorf("%w for event type %q", ErrHandlerNotFound, eventType)
	}
	return handler, nil
}
