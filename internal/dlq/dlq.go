// Package dlq persists webhook deliveries that failed terminally so an
// operator can inspect and replay them after the underlying problem is
// fixed. Transient failures are retried in-line and never land here.
package dlq

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Entry is one dead-lettered delivery.
type Entry struct {
	ID           string    `json:"id"`
	DealID       string    `json:"deal_id"`
	Payload      []byte    `json:"-"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"`
	RetryCount   int       `json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// Store defines the dead-letter persistence operations.
type Store interface {
	Save(ctx context.Context, dealID string, payload []byte, cause error, errorType string) (string, error)
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, limit int) ([]Entry, error)
	MarkRetried(ctx context.Context, id string, cause error) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "dlq: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "dlq: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS deliveries (
	id             TEXT PRIMARY KEY,
	deal_id        TEXT NOT NULL,
	payload        BLOB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_deliveries_deal_id ON deliveries(deal_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at);
`

// Migrate creates the schema if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "dlq: migrate")
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save records one failed delivery and returns its id.
func (s *SQLiteStore) Save(ctx context.Context, dealID string, payload []byte, cause error, errorType string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, deal_id, payload, error, error_type, retry_count, created_at, last_failed_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, dealID, payload, cause.Error(), errorType, now, now)
	if err != nil {
		return "", eris.Wrap(err, "dlq: save delivery")
	}
	return id, nil
}

// Get loads one entry including its payload.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, deal_id, payload, error, error_type, retry_count, created_at, last_failed_at
		FROM deliveries WHERE id = ?`, id)

	var e Entry
	if err := row.Scan(&e.ID, &e.DealID, &e.Payload, &e.Error, &e.ErrorType, &e.RetryCount, &e.CreatedAt, &e.LastFailedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Errorf("dlq: delivery %s not found", id)
		}
		return nil, eris.Wrap(err, "dlq: get delivery")
	}
	return &e, nil
}

// List returns the newest entries without payloads.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, error, error_type, retry_count, created_at, last_failed_at
		FROM deliveries ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "dlq: list deliveries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.DealID, &e.Error, &e.ErrorType, &e.RetryCount, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "dlq: scan delivery")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "dlq: iterate deliveries")
}

// MarkRetried bumps the retry counter after a failed replay.
func (s *SQLiteStore) MarkRetried(ctx context.Context, id string, cause error) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET retry_count = retry_count + 1, error = ?, last_failed_at = ?
		WHERE id = ?`,
		cause.Error(), time.Now().UTC(), id)
	return eris.Wrap(err, "dlq: mark retried")
}

// Delete removes an entry after a successful replay.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE id = ?`, id)
	return eris.Wrap(err, "dlq: delete delivery")
}
