package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickWorker runs a function at a fixed interval and handles graceful
// shutdown. It is the pull half of the trigger surface: a safety net that
// keeps the outbox draining even when an enqueue signal is missed.
type TickWorker struct {
	name     string
	interval time.Duration
	logger   *zap.Logger
	workFunc func(ctx context.Context) error

	wg       sync.WaitGroup
	mu       sync.Mutex
	stopOnce sync.Once
	stopChan chan struct{}
	started  bool
}

// NewTickWorker creates a ticker-driven worker.
func NewTickWorker(name string, interval time.Duration, logger *zap.Logger, workFunc func(ctx context.Context) error) *TickWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickWorker{
		name:     name,
		interval: interval,
		logger:   logger,
		workFunc: workFunc,
		stopChan: make(chan struct{}),
	}
}

// Start runs the worker loop. It blocks until the context is cancelled or
// Stop is called.
func (w *TickWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		w.logger.Warn("Worker already started", zap.String("name", w.name))
		return
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("Worker starting", zap.String("name", w.name), zap.Duration("interval", w.interval))
	defer w.logger.Info("Worker finished", zap.String("name", w.name))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			// Stop may have raced the tick.
			select {
			case <-w.stopChan:
				return
			default:
			}
			w.runOnce(ctx)
		}
	}
}

func (w *TickWorker) runOnce(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()

	select {
	case <-ctx.Done():
		return
	default:
	}

	if err := w.workFunc(ctx); err != nil {
		w.logger.Error("Worker run failed", zap.String("name", w.name), zap.Error(err))
	}
}

// Stop shuts the worker down and waits for any in-progress run to complete.
// It is safe to call more than once.
func (w *TickWorker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if !started {
			return
		}
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Name returns the worker's name.
func (w *TickWorker) Name() string {
	return w.name
}
