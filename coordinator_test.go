package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// blockingProcessor blocks inside ProcessOutbox until released, so tests can
// hold a pass open while poking the coordinator from elsewhere.
type blockingProcessor struct {
	started chan struct{}
	release chan struct{}
	calls   int32
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (p *blockingProcessor) ProcessOutbox(ctx context.Context) (Summary, error) {
	atomic.AddInt32(&p.calls, 1)
	p.started <- struct{}{}
	<-p.release
	return Summary{}, nil
}

type stubProcessor struct {
	calls int32
	err   error
}

func (p *stubProcessor) ProcessOutbox(ctx context.Context) (Summary, error) {
	atomic.AddInt32(&p.calls, 1)
	return Summary{Fetched: 1, Completed: 1}, p.err
}

func TestCoordinator_StartProcessing_SkipsWhenAlreadyRunning(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	processor := newBlockingProcessor()
	coordinator := NewCoordinator(processor, WithCoordinatorLogger(zap.New(core)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		coordinator.StartProcessing(context.Background())
	}()

	// Hold the first pass open, then try to start a second one.
	<-processor.started
	coordinator.StartProcessing(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&processor.calls))

	skipped := logs.FilterField(zap.String("event", "outbox.processing.skipped_already_running"))
	assert.Equal(t, 1, skipped.Len())

	close(processor.release)
	wg.Wait()
}

func TestCoordinator_StartProcessing_FlagResetsAfterFailure(t *testing.T) {
	processor := &stubProcessor{err: errors.New("pass blew up")}
	coordinator := NewCoordinator(processor)

	coordinator.StartProcessing(context.Background())
	coordinator.StartProcessing(context.Background())

	// A failed pass must not leave the processing flag stuck true.
	assert.Equal(t, int32(2), atomic.LoadInt32(&processor.calls))
}

func TestCoordinator_StartProcessing_RunsAgainAfterCompletion(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	processor := &stubProcessor{}
	coordinator := NewCoordinator(processor, WithCoordinatorLogger(zap.New(core)))

	coordinator.StartProcessing(context.Background())
	coordinator.StartProcessing(context.Background())

	assert.Equal(t, int32(2), atomic.LoadInt32(&processor.calls))
	skipped := logs.FilterField(zap.String("event", "outbox.processing.skipped_already_running"))
	assert.Equal(t, 0, skipped.Len())
}

func TestCoordinator_Init_SubscribesToSignal(t *testing.T) {
	processor := &stubProcessor{}
	coordinator := NewCoordinator(processor)

	bus := NewSignalBus()
	coordinator.Init(bus)

	bus.Publish()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processor.calls) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinator_Init_IsIdempotent(t *testing.T) {
	processor := &stubProcessor{}
	coordinator := NewCoordinator(processor)

	bus := NewSignalBus()
	coordinator.Init(bus)
	coordinator.Init(bus)

	assert.Equal(t, 1, bus.SubscriberCount())
}
