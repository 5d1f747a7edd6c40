package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quillpost/outbox/storage"
)

// StuckSweeper reclaims entries left in the processing state, usually after
// a crash mid-pass. Entries still under the retry ceiling go back to
// pending; the rest are marked failed for manual inspection.
type StuckSweeper struct {
	store        storage.Store
	logger       *zap.Logger
	metrics      MetricsCollector
	backoff      BackoffStrategy
	batchSize    int
	maxRetries   int
	stuckTimeout time.Duration
}

// NewStuckSweeper creates a sweeper over the given store.
func NewStuckSweeper(store storage.Store, opts ...SweeperOption) *StuckSweeper {
	s := &StuckSweeper{
		store:        store,
		logger:       zap.NewNop(),
		metrics:      NewNopMetricsCollector(),
		backoff:      DefaultBackoffStrategy(),
		batchSize:    defaultBatchSize,
		maxRetries:   defaultMaxRetries,
		stuckTimeout: defaultStuckTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = NewNopMetricsCollector()
	}
	return s
}

// Sweep finds entries stuck in processing longer than the configured timeout
// and returns them to the pending pool.
func (s *StuckSweeper) Sweep(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("sweeper.duration", time.Since(start), nil)
	}()

	entries, err := s.store.FetchStuck(ctx, s.batchSize, s.stuckTimeout)
	if err != nil {
		return fmt.Errorf("failed to fetch stuck entries: %w", err)
	}

	if len(entries) == 0 {
		return nil
	}

	s.logger.Info("Found stuck outbox entries", zap.Int("count", len(entries)))

	reclaimed := 0
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entryFields := []zap.Field{
			zap.String("entry_id", entry.ID),
			zap.String("event_type", entry.EventType),
			zap.Int("retry_count", entry.RetryCount),
		}

		if entry.RetryCount >= s.maxRetries {
			if err := s.store.MarkFailed(ctx, entry.ID, "stuck in processing past retry ceiling"); err != nil {
				s.logger.Error("Failed to mark stuck entry as failed", append(entryFields, zap.Error(err))...)
				continue
			}
			s.metrics.IncrementCounter("sweeper.marked_failed", nil)
			s.logger.Warn("Stuck entry past retry ceiling marked as failed", entryFields...)
			continue
		}

		nextAttemptAt := s.backoff.NextAttempt(entry.RetryCount + 1)
		if err := s.store.ResetStuck(ctx, entry.ID, nextAttemptAt); err != nil {
			s.logger.Error("Failed to reclaim stuck entry", append(entryFields, zap.Error(err))...)
			continue
		}
		reclaimed++
		s.metrics.IncrementCounter("sweeper.reclaimed", nil)
	}

	s.logger.Info("Stuck entry sweep completed",
		zap.Int("reclaimed", reclaimed),
		zap.Duration("stuck_timeout", s.stuckTimeout))
	return nil
}
