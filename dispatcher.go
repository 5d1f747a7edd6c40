package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quillpost/outbox/storage"
)

// Dispatcher drains pending outbox entries through the handler registry.
// Entries within one pass are processed sequentially in creation order, and
// one entry's failure never aborts the rest of the pass.
type Dispatcher struct {
	store      storage.Store
	registry   *Registry
	logger     *zap.Logger
	metrics    MetricsCollector
	backoff    BackoffStrategy
	maxRetries int
	batchSize  int
}

// NewDispatcher creates a dispatcher over the given store and registry.
func NewDispatcher(store storage.Store, registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		registry:   registry,
		logger:     zap.NewNop(),
		metrics:    NewNopMetricsCollector(),
		backoff:    DefaultBackoffStrategy(),
		maxRetries: defaultMaxRetries,
		batchSize:  defaultBatchSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.metrics == nil {
		d.metrics = NewNopMetricsCollector()
	}
	return d
}

// ProcessOutbox runs one dispatch pass: fetch due pending entries, invoke the
// matching handler for each, and record the outcome on the entry.
func (d *Dispatcher) ProcessOutbox(ctx context.Context) (Summary, error) {
	start := time.Now()

	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to fetch pending entries: %w", err)
	}
	d.metrics.RecordDuration("dispatcher.fetch_duration", time.Since(start), nil)

	summary := Summary{Fetched: len(entries)}
	if len(entries) == 0 {
		return summary, nil
	}

	d.logger.Info("Fetched outbox entries for processing", zap.Int("count", len(entries)))
	d.metrics.RecordGauge("dispatcher.batch_size", float64(len(entries)), nil)

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			d.logger.Warn("Context cancelled during dispatch pass", zap.Error(ctx.Err()))
			d.metrics.RecordDuration("dispatcher.pass_duration", time.Since(start), nil)
			return summary, nil
		default:
		}

		d.processEntry(ctx, entry, &summary)
	}

	d.logger.Info("Dispatch pass completed",
		zap.Int("completed", summary.Completed),
		zap.Int("requeued", summary.Requeued),
		zap.Int("failed", summary.Failed))
	d.metrics.RecordDuration("dispatcher.pass_duration", time.Since(start), nil)

	return summary, nil
}

func (d *Dispatcher) processEntry(ctx context.Context, entry storage.EntryRecord, summary *Summary) {
	entryFields := []zap.Field{
		zap.String("entry_id", entry.ID),
		zap.String("event_type", entry.EventType),
		zap.Int("retry_count", entry.RetryCount),
	}

	if err := d.store.MarkProcessing(ctx, entry.ID); err != nil {
		if errors.Is(err, storage.ErrAlreadyClaimed) {
			// Another dispatcher instance got to this entry first.
			d.logger.Debug("Entry already claimed, skipping", entryFields...)
			d.metrics.IncrementCounter("dispatcher.claim_lost", nil)
			return
		}
		d.logger.Error("Failed to claim entry", append(entryFields, zap.Error(err))...)
		return
	}

	handler, err := d.registry.Resolve(entry.EventType)
	if err != nil {
		// No handler will magically appear; retrying cannot fix this.
		d.logger.Error("No handler registered for event type",
			append(entryFields, zap.Error(err))...)
		d.metrics.IncrementCounter("dispatcher.handler_missing", map[string]string{"event_type": entry.EventType})
		if markErr := d.store.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
			d.logger.Error("Failed to mark entry as failed", append(entryFields, zap.Error(markErr))...)
			return
		}
		summary.Failed++
		return
	}

	d.logger.Debug("Dispatching entry", entryFields...)

	if err := handler.Handle(ctx, toEntry(entry)); err != nil {
		d.metrics.IncrementCounter("dispatcher.handle_failed", map[string]string{"event_type": entry.EventType})
		d.logger.Error("Handler failed", append(entryFields, zap.Error(err))...)
		d.recordFailure(ctx, entry, err, summary)
		return
	}

	if err := d.store.MarkCompleted(ctx, entry.ID); err != nil {
		// The side effect happened but the status update did not. The stuck
		// sweeper reclaims the entry; the handler's idempotency absorbs the
		// repeated delivery.
		d.metrics.IncrementCounter("dispatcher.mark_completed_failed", map[string]string{"event_type": entry.EventType})
		d.logger.Error("Failed to mark entry as completed", append(entryFields, zap.Error(err))...)
		return
	}

	summary.Completed++
	d.metrics.IncrementCounter("dispatcher.handle_success", map[string]string{"event_type": entry.EventType})
	d.logger.Info("Entry processed successfully", entryFields...)
}

func (d *Dispatcher) recordFailure(ctx context.Context, entry storage.EntryRecord, handleErr error, summary *Summary) {
	if entry.RetryCount >= d.maxRetries {
		d.logger.Error("Entry exceeded max retries, marking as failed",
			zap.String("entry_id", entry.ID),
			zap.String("event_type", entry.EventType),
			zap.Int("retry_count", entry.RetryCount),
			zap.Error(handleErr))
		if err := d.store.MarkFailed(ctx, entry.ID, handleErr.Error()); err != nil {
			d.logger.Error("Failed to mark entry as failed", zap.String("entry_id", entry.ID), zap.Error(err))
			return
		}
		summary.Failed++
		return
	}

	nextAttemptAt := d.backoff.NextAttempt(entry.RetryCount + 1)
	d.logger.Info("Requeueing entry for retry",
		zap.String("entry_id", entry.ID),
		zap.String("event_type", entry.EventType),
		zap.Int("retry_count", entry.RetryCount+1),
		zap.Time("next_attempt_at", nextAttemptAt))
	if err := d.store.IncrementRetryAndRequeue(ctx, entry.ID, nextAttemptAt, handleErr.Error()); err != nil {
		d.logger.Error("Failed to requeue entry", zap.String("entry_id", entry.ID), zap.Error(err))
		return
	}
	summary.Requeued++
}

func toEntry(rec storage.EntryRecord) Entry {
	return Entry{
		ID:         rec.ID,
		EventType:  rec.EventType,
		Payload:    rec.Payload,
		Status:     rec.Status,
		RetryCount: rec.RetryCount,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}
