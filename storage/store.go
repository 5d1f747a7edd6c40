package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry statuses. These four values are the only ones a store may persist.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
	StatusCompleted  = "completed"
)

var (
	// ErrAlreadyClaimed is returned by MarkProcessing when the entry is not
	// in the pending state, i.e. another dispatcher got there first.
	ErrAlreadyClaimed = errors.New("entry already claimed")

	// ErrEntryExists is returned when an entry with a duplicate id is created.
	ErrEntryExists = errors.New("entry already exists")

	// ErrEntryNotFound is returned by status transitions for unknown ids.
	ErrEntryNotFound = errors.New("entry not found")
)

// ValidationError reports a field that failed validation at persistence time.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidStatus reports whether s is one of the four allowed entry statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusFailed, StatusCompleted:
		return true
	}
	return false
}

// DBTX is satisfied by both *sql.DB and *sql.Tx, so entries can be written
// in the same transaction as the domain fact they represent.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// EntryRecord is the database representation of an outbox entry.
type EntryRecord struct {
	ID            string
	EventType     string
	Payload       []byte
	Status        string
	RetryCount    int
	NextAttemptAt *time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store defines the persistence operations for outbox entries.
type Store interface {
	// CreateEntry persists a new entry within the given transaction.
	CreateEntry(ctx context.Context, tx DBTX, entry *EntryRecord) error
	// FetchPending returns due pending entries, oldest created first.
	// Entries currently processing are never returned.
	FetchPending(ctx context.Context, limit int) ([]EntryRecord, error)
	// MarkProcessing atomically claims a pending entry. It returns
	// ErrAlreadyClaimed when the entry is no longer pending.
	MarkProcessing(ctx context.Context, id string) error
	// MarkCompleted marks an entry as successfully handled.
	MarkCompleted(ctx context.Context, id string) error
	// MarkFailed marks an entry as terminally failed. No further automatic
	// retries happen after this transition.
	MarkFailed(ctx context.Context, id string, lastError string) error
	// IncrementRetryAndRequeue returns a failed attempt to the pending pool
	// with its retry count incremented and the next attempt deferred.
	IncrementRetryAndRequeue(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error
	// FetchStuck returns entries left in processing for longer than stuckTimeout.
	FetchStuck(ctx context.Context, limit int, stuckTimeout time.Duration) ([]EntryRecord, error)
	// ResetStuck returns a stuck processing entry to the pending pool.
	ResetStuck(ctx context.Context, id string, nextAttemptAt time.Time) error
}
