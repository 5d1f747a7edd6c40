package outbox

import "sync"

// SignalBus fans out zero-payload "new work may be available" notifications.
// Any subsystem may publish; the coordinator subscribes. Delivery is
// asynchronous so a publisher is never blocked by a running dispatch pass.
type SignalBus struct {
	mu   sync.RWMutex
	subs []func()
}

// NewSignalBus creates a bus with no subscribers.
func NewSignalBus() *SignalBus {
	return &SignalBus{}
}

// Subscribe registers fn to be called on every published signal.
func (b *SignalBus) Subscribe(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish notifies all subscribers. Publishing with no subscribers is a
// no-op.
func (b *SignalBus) Publish() {
	b.mu.RLock()
	subs := make([]func(), len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		go fn()
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *SignalBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
