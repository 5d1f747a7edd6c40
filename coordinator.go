package outbox

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Processor runs one dispatch pass over the outbox.
type Processor interface {
	ProcessOutbox(ctx context.Context) (Summary, error)
}

// Coordinator is the single-flight guard in front of the dispatcher. Both
// the enqueue-time signal and the periodic tick call StartProcessing, so at
// most one pass runs at a time per process. The guard is process-local; for
// deployments with several instances the store's conditional claim is the
// real mutual exclusion.
type Coordinator struct {
	processor Processor
	logger    *zap.Logger
	metrics   MetricsCollector

	mu         sync.Mutex
	processing bool
	subscribed bool
}

// NewCoordinator creates a coordinator over the given processor.
func NewCoordinator(processor Processor, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		processor: processor,
		logger:    zap.NewNop(),
		metrics:   NewNopMetricsCollector(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = NewNopMetricsCollector()
	}
	return c
}

// Init subscribes the coordinator to the signal bus so that every enqueue
// triggers a dispatch pass. Calling Init more than once subscribes once.
func (c *Coordinator) Init(bus *SignalBus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribed {
		return
	}
	bus.Subscribe(func() {
		c.StartProcessing(context.Background())
	})
	c.subscribed = true
}

// StartProcessing runs one dispatch pass unless one is already in flight, in
// which case the call is a no-op. Failures inside the pass are terminal
// states on the entries and log records, never errors surfaced to the
// caller.
func (c *Coordinator) StartProcessing(ctx context.Context) {
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		c.logger.Info("Outbox processing skipped, a pass is already running",
			zap.String("event", "outbox.processing.skipped_already_running"))
		c.metrics.IncrementCounter("coordinator.skipped_already_running", nil)
		return
	}
	c.processing = true
	c.mu.Unlock()

	// The flag must come back down on every exit path, otherwise the
	// processor deadlocks permanently.
	defer func() {
		c.mu.Lock()
		c.processing = false
		c.mu.Unlock()
	}()

	summary, err := c.processor.ProcessOutbox(ctx)
	if err != nil {
		c.logger.Error("Dispatch pass failed", zap.Error(err))
		c.metrics.IncrementCounter("coordinator.pass_failed", nil)
		return
	}

	if summary.Fetched > 0 {
		c.logger.Info("Outbox processing finished",
			zap.Int("fetched", summary.Fetched),
			zap.Int("completed", summary.Completed),
			zap.Int("requeued", summary.Requeued),
			zap.Int("failed", summary.Failed))
	}
}
