// Package journal keeps a sqlite history of recording session lifecycle
// events.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL,
    key         TEXT NOT NULL,
    type        TEXT NOT NULL,
    at_ns       INTEGER NOT NULL,
    elapsed_ms  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_at ON events(at_ns);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
`

const (
	// DefaultRecent is used by Recent when n is not positive.
	DefaultRecent = 20
	maxRecent     = 500
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal: closed")

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	At        time.Time `json:"at"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
}

// Journal is the sqlite-backed event store. It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open opens or creates the database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	slog.Debug("[journal] opened", "path", path)
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	return j.db.Close()
}

// Record inserts e and returns its row id. A zero At is stamped with the
// current time.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if j.closed.Load() {
		return 0, ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	result, err := j.db.ExecContext(ctx, `
		INSERT INTO events (session_id, key, type, at_ns, elapsed_ms)
		VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.Key, e.Type, e.At.UnixNano(), e.ElapsedMS,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	if n <= 0 {
		n = DefaultRecent
	}
	n = min(n, maxRecent)

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, key, type, at_ns, elapsed_ms
		FROM events ORDER BY at_ns DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, n)
	for rows.Next() {
		var (
			e    Entry
			atNs int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Key, &e.Type, &atNs, &e.ElapsedMS); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		e.At = time.Unix(0, atNs)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate events: %w", err)
	}
	return out, nil
}

// Prune deletes entries recorded before cutoff and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if j.closed.Load() {
		return 0, ErrClosed
	}
	result, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE at_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: prune rows affected: %w", err)
	}
	return n, nil
}
