package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It implements the same conditional-update
// discipline as the SQL store, so two dispatchers racing to claim one entry
// see exactly one winner. Intended for tests and local development.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]*EntryRecord
	now     func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string]*EntryRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's clock. Tests only.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemStore) CreateEntry(_ context.Context, _ DBTX, entry *EntryRecord) error {
	if !ValidStatus(entry.Status) {
		return &ValidationError{Field: "outbox.status", Message: "unknown status " + entry.Status}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; ok {
		return ErrEntryExists
	}

	rec := *entry
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.UpdatedAt = rec.CreatedAt
	s.entries[rec.ID] = &rec
	return nil
}

func (s *MemStore) FetchPending(_ context.Context, limit int) ([]EntryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []EntryRecord
	for _, rec := range s.entries {
		if rec.Status != StatusPending {
			continue
		}
		if rec.NextAttemptAt != nil && rec.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, *rec)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemStore) MarkProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if rec.Status != StatusPending {
		return ErrAlreadyClaimed
	}
	rec.Status = StatusProcessing
	rec.UpdatedAt = s.now()
	return nil
}

func (s *MemStore) MarkCompleted(_ context.Context, id string) error {
	return s.transition(id, func(rec *EntryRecord) {
		rec.Status = StatusCompleted
	})
}

func (s *MemStore) MarkFailed(_ context.Context, id string, lastError string) error {
	return s.transition(id, func(rec *EntryRecord) {
		rec.Status = StatusFailed
		rec.LastError = lastError
	})
}

func (s *MemStore) IncrementRetryAndRequeue(_ context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	return s.transition(id, func(rec *EntryRecord) {
		rec.Status = StatusPending
		rec.RetryCount++
		rec.NextAttemptAt = &nextAttemptAt
		rec.LastError = lastError
	})
}

func (s *MemStore) FetchStuck(_ context.Context, limit int, stuckTimeout time.Duration) ([]EntryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := s.now().Add(-stuckTimeout)
	var stuck []EntryRecord
	for _, rec := range s.entries {
		if rec.Status == StatusProcessing && rec.UpdatedAt.Before(threshold) {
			stuck = append(stuck, *rec)
		}
	}

	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].CreatedAt.Before(stuck[j].CreatedAt)
	})
	if limit > 0 && len(stuck) > limit {
		stuck = stuck[:limit]
	}
	return stuck, nil
}

func (s *MemStore) ResetStuck(_ context.Context, id string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if rec.Status != StatusProcessing {
		return ErrAlreadyClaimed
	}
	rec.Status = StatusPending
	rec.NextAttemptAt = &nextAttemptAt
	rec.UpdatedAt = s.now()
	return nil
}

// Entry returns a copy of the entry with the given id.
func (s *MemStore) Entry(id string) (EntryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[id]
	if !ok {
		return EntryRecord{}, false
	}
	return *rec, true
}

func (s *MemStore) transition(id string, apply func(*EntryRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	apply(rec)
	rec.UpdatedAt = s.now()
	return nil
}
