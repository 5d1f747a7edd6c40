package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/quillpost/outbox/storage"
)

const tableOutbox = "outbox"

// SQL queries
const (
	createQuery = `
		INSERT INTO %s (id, event_type, payload, status, retry_count)
		VALUES (?, ?, ?, ?, ?)`

	fetchPendingQuery = `
		SELECT id, event_type, payload, status, retry_count, next_attempt_at, last_error, created_at, updated_at
		FROM %s
		WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at
		LIMIT ?`

	fetchStuckQuery = `
		SELECT id, event_type, payload, status, retry_count, next_attempt_at, last_error, created_at, updated_at
		FROM %s
		WHERE status = ? AND updated_at < ?
		ORDER BY created_at
		LIMIT ?`

	markProcessingQuery = `
		UPDATE %s SET status = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ? AND status = ?`

	markCompletedQuery = `
		UPDATE %s SET status = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?`

	markFailedQuery = `
		UPDATE %s SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?`

	requeueQuery = `
		UPDATE %s
		SET status = ?, retry_count = retry_count + 1, next_attempt_at = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?`

	resetStuckQuery = `
		UPDATE %s SET status = ?, next_attempt_at = ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ? AND status = ?`
)

// SQLStore is the MySQL implementation of storage.Store. The claim to an
// entry is an atomic conditional update checked by rows-affected, so it
// stays correct across multiple processes sharing one table.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:     db,
		logger: logger,
	}
}

func (s *SQLStore) CreateEntry(ctx context.Context, tx storage.DBTX, entry *storage.EntryRecord) error {
	if !storage.ValidStatus(entry.Status) {
		return &storage.ValidationError{Field: "outbox.status", Message: "unknown status " + entry.Status}
	}

	query := fmt.Sprintf(createQuery, tableOutbox)
	_, err := tx.ExecContext(ctx, query,
		entry.ID,
		entry.EventType,
		entry.Payload,
		entry.Status,
		entry.RetryCount,
	)

	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return storage.ErrEntryExists
		}
		return fmt.Errorf("failed to save outbox entry: %w", err)
	}
	return nil
}

func (s *SQLStore) FetchPending(ctx context.Context, limit int) ([]storage.EntryRecord, error) {
	query := fmt.Sprintf(fetchPendingQuery, tableOutbox)
	rows, err := s.db.QueryContext(ctx, query, storage.StatusPending, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

func (s *SQLStore) FetchStuck(ctx context.Context, limit int, stuckTimeout time.Duration) ([]storage.EntryRecord, error) {
	stuckTime := time.Now().UTC().Add(-stuckTimeout)
	query := fmt.Sprintf(fetchStuckQuery, tableOutbox)
	rows, err := s.db.QueryContext(ctx, query, storage.StatusProcessing, stuckTime, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck entries: %w", err)
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

func (s *SQLStore) MarkProcessing(ctx context.Context, id string) error {
	query := fmt.Sprintf(markProcessingQuery, tableOutbox)
	res, err := s.db.ExecContext(ctx, query, storage.StatusProcessing, id, storage.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark entry as processing: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrAlreadyClaimed
	}
	return nil
}

func (s *SQLStore) MarkCompleted(ctx context.Context, id string) error {
	query := fmt.Sprintf(markCompletedQuery, tableOutbox)
	_, err := s.db.ExecContext(ctx, query, storage.StatusCompleted, id)
	return err
}

func (s *SQLStore) MarkFailed(ctx context.Context, id string, lastError string) error {
	query := fmt.Sprintf(markFailedQuery, tableOutbox)
	_, err := s.db.ExecContext(ctx, query, storage.StatusFailed, lastError, id)
	return err
}

func (s *SQLStore) IncrementRetryAndRequeue(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	query := fmt.Sprintf(requeueQuery, tableOutbox)
	_, err := s.db.ExecContext(ctx, query, storage.StatusPending, nextAttemptAt, lastError, id)
	return err
}

func (s *SQLStore) ResetStuck(ctx context.Context, id string, nextAttemptAt time.Time) error {
	query := fmt.Sprintf(resetStuckQuery, tableOutbox)
	res, err := s.db.ExecContext(ctx, query, storage.StatusPending, nextAttemptAt, id, storage.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to reset stuck entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrAlreadyClaimed
	}
	return nil
}

func (s *SQLStore) scanEntries(rows *sql.Rows) ([]storage.EntryRecord, error) {
	var entries []storage.EntryRecord
	for rows.Next() {
		var (
			entry         storage.EntryRecord
			nextAttemptAt sql.NullTime
			lastError     sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.EventType,
			&entry.Payload,
			&entry.Status,
			&entry.RetryCount,
			&nextAttemptAt,
			&lastError,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		if nextAttemptAt.Valid {
			t := nextAttemptAt.Time
			entry.NextAttemptAt = &t
		}
		entry.LastError = lastError.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading entry rows: %w", err)
	}
	return entries, nil
}

// EnsureTable creates the outbox table if it does not exist.
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS outbox (
			id              CHAR(36)     NOT NULL PRIMARY KEY,
			event_type      VARCHAR(255) NOT NULL,
			payload         JSON         NOT NULL,
			status          VARCHAR(16)  NOT NULL DEFAULT 'pending',
			retry_count     INT          NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMP(6) NULL,
			last_error      TEXT         NULL,
			created_at      TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			updated_at      TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
			INDEX idx_status_next_attempt (status, next_attempt_at),
			INDEX idx_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create outbox table: %w", err)
	}
	return nil
}
