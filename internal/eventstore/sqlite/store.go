// Package sqlite is the default durable event log, a single SQLite file on
// modernc.org/sqlite (no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"argus/internal/eventstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	global_seq  INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id    TEXT    NOT NULL UNIQUE,
	stream_id   TEXT    NOT NULL,
	version     INTEGER NOT NULL,
	event_type  TEXT    NOT NULL,
	occurred_at INTEGER NOT NULL,
	payload     TEXT    NOT NULL,
	UNIQUE (stream_id, version)
);
CREATE TRIGGER IF NOT EXISTS events_no_update BEFORE UPDATE ON events
BEGIN SELECT RAISE(ABORT, 'events are append-only'); END;
CREATE TRIGGER IF NOT EXISTS events_no_delete BEFORE DELETE ON events
BEGIN SELECT RAISE(ABORT, 'events are append-only'); END;
`

type Store struct {
	db    *sql.DB
	locks *eventstore.StreamLocks
	now   func() time.Time
}

// Open opens (creating if needed) the event log at path and applies the schema.
func Open(path string) (*Store, error) {
	cleanPath := filepath.Clean(strings.TrimSpace(path))
	if cleanPath == "" || cleanPath == "." {
		return nil, fmt.Errorf("event log path is required")
	}
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between
	// our own goroutines.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping event log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply event log schema: %w", err)
	}
	return &Store{db: db, locks: eventstore.NewStreamLocks(), now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, stream eventstore.StreamID, expectedVersion int64, events ...eventstore.Event) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prepared, err := eventstore.Prepare(stream, events, s.now())
	if err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(stream)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`, string(stream),
	).Scan(&current); err != nil {
		return 0, fmt.Errorf("read stream version: %w", err)
	}
	if err := eventstore.CheckExpected(stream, expectedVersion, current); err != nil {
		return 0, err
	}

	for _, evt := range prepared {
		current++
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, stream_id, version, event_type, occurred_at, payload)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			evt.ID.String(), string(stream), current, evt.Type, evt.Timestamp.UnixNano(), string(evt.Payload),
		)
		if err != nil {
			if isConstraintError(err) {
				// Another process appended to the same file.
				return 0, fmt.Errorf("%w: %s at version %d", eventstore.ErrConcurrencyConflict, stream, current)
			}
			return 0, fmt.Errorf("append event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return current, nil
}

func (s *Store) ReadStream(ctx context.Context, stream eventstore.StreamID) ([]eventstore.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT global_seq, event_id, stream_id, version, event_type, occurred_at, payload
		 FROM events WHERE stream_id = ? ORDER BY version`, string(stream))
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return scanRecords(rows)
}

func (s *Store) ReadAll(ctx context.Context, afterSeq int64, limit int) ([]eventstore.Record, error) {
	query := `SELECT global_seq, event_id, stream_id, version, event_type, occurred_at, payload
		FROM events WHERE global_seq > ? ORDER BY global_seq`
	args := []any{afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	return scanRecords(rows)
}

func (s *Store) Version(ctx context.Context, stream eventstore.StreamID) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`, string(stream)).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read stream version: %w", err)
	}
	return v, nil
}

func scanRecords(rows *sql.Rows) ([]eventstore.Record, error) {
	defer rows.Close()
	out := []eventstore.Record{}
	for rows.Next() {
		var (
			rec      eventstore.Record
			eventID  string
			streamID string
			nanos    int64
			payload  string
		)
		if err := rows.Scan(&rec.GlobalSeq, &eventID, &streamID, &rec.Version, &rec.Type, &nanos, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		id, err := uuid.Parse(eventID)
		if err != nil {
			return nil, fmt.Errorf("event %d: parse id: %w", rec.GlobalSeq, err)
		}
		rec.EventID = id
		rec.StreamID = eventstore.StreamID(streamID)
		rec.Timestamp = time.Unix(0, nanos).UTC()
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
