package outbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewSignalBus()

	assert.NotPanics(t, func() {
		bus.Publish()
	})
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestSignalBus_PublishNotifiesAllSubscribers(t *testing.T) {
	bus := NewSignalBus()

	var wg sync.WaitGroup
	wg.Add(2)
	bus.Subscribe(func() { wg.Done() })
	bus.Subscribe(func() { wg.Done() })

	bus.Publish()
	wg.Wait()

	assert.Equal(t, 2, bus.SubscriberCount())
}

func TestSignalBus_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewSignalBus()

	blocked := make(chan struct{})
	bus.Subscribe(func() { <-blocked })

	done := make(chan struct{})
	go func() {
		bus.Publish()
		close(done)
	}()

	// Publish must return even while the subscriber is still blocked.
	<-done
	close(blocked)
}
