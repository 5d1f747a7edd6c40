package outbox

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 25
	defaultMaxRetries   = 5
	defaultBaseDelay    = 1 * time.Minute
	defaultMaxDelay     = 30 * time.Minute
	defaultJitterMax    = 10 * time.Second
	defaultStuckTimeout = 10 * time.Minute
)

//
// Dispatcher Options
//

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherMetrics(metrics MetricsCollector) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

func WithBatchSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		d.batchSize = size
	}
}

func WithMaxRetries(retries int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRetries = retries
	}
}

func WithBackoffStrategy(strategy BackoffStrategy) DispatcherOption {
	return func(d *Dispatcher) {
		d.backoff = strategy
	}
}

//
// Coordinator Options
//

type CoordinatorOption func(*Coordinator)

func WithCoordinatorLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithCoordinatorMetrics(metrics MetricsCollector) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

//
// StuckSweeper Options
//

type SweeperOption func(*StuckSweeper)

func WithSweeperLogger(logger *zap.Logger) SweeperOption {
	return func(s *StuckSweeper) {
		s.logger = logger
	}
}

func WithSweeperMetrics(metrics MetricsCollector) SweeperOption {
	return func(s *StuckSweeper) {
		s.metrics = metrics
	}
}

func WithSweeperBatchSize(size int) SweeperOption {
	return func(s *StuckSweeper) {
		s.batchSize = size
	}
}

func WithSweeperMaxRetries(retries int) SweeperOption {
	return func(s *StuckSweeper) {
		s.maxRetries = retries
	}
}

func WithStuckTimeout(timeout time.Duration) SweeperOption {
	return func(s *StuckSweeper) {
		s.stuckTimeout = timeout
	}
}

func WithSweeperBackoffStrategy(strategy BackoffStrategy) SweeperOption {
	return func(s *StuckSweeper) {
		s.backoff = strategy
	}
}

//
// Enqueuer Options
//

type EnqueuerOption func(*Enqueuer)

func WithEnqueuerLogger(logger *zap.Logger) EnqueuerOption {
	return func(e *Enqueuer) {
		e.logger = logger
	}
}

func WithSignalBus(bus *SignalBus) EnqueuerOption {
	return func(e *Enqueuer) {
		e.bus = bus
	}
}
