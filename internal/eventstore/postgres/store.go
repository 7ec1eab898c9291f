// Package postgres stores the event log in PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"argus/internal/eventstore"
	txcontext "argus/pkg/platform/tx"
)

// Schema creates the events table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	global_seq  BIGSERIAL   PRIMARY KEY,
	event_id    UUID        NOT NULL UNIQUE,
	stream_id   TEXT        NOT NULL,
	version     BIGINT      NOT NULL,
	event_type  TEXT        NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	payload     JSONB       NOT NULL,
	UNIQUE (stream_id, version)
);
`

// sequenceLockKey serializes the final insert so global_seq is assigned in
// commit order and ReadAll tails never skip a concurrently committed event.
const sequenceLockKey = 0x6172677573

const uniqueViolation = "23505"

type Store struct {
	db    *sql.DB
	locks *eventstore.StreamLocks
	now   func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, locks: eventstore.NewStreamLocks(), now: time.Now}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply events schema: %w", err)
	}
	return nil
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append joins a transaction already on ctx, otherwise opens its own.
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

	var newVersion int64
	err = txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		q := s.querier(ctx)
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(stream)); err != nil {
			return fmt.Errorf("lock stream: %w", err)
		}
		var current int64
		if err := q.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`, string(stream),
		).Scan(&current); err != nil {
			return fmt.Errorf("read stream version: %w", err)
		}
		if err := eventstore.CheckExpected(stream, expectedVersion, current); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, sequenceLockKey); err != nil {
			return fmt.Errorf("lock sequence: %w", err)
		}
		for _, evt := range prepared {
			current++
			_, err := q.ExecContext(ctx,
				`INSERT INTO events (event_id, stream_id, version, event_type, occurred_at, payload)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				evt.ID, string(stream), current, evt.Type, evt.Timestamp, []byte(evt.Payload),
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %s at version %d", eventstore.ErrConcurrencyConflict, stream, current)
				}
				return fmt.Errorf("append event: %w", err)
			}
		}
		newVersion = current
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (s *Store) ReadStream(ctx context.Context, stream eventstore.StreamID) ([]eventstore.Record, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT global_seq, event_id, stream_id, version, event_type, occurred_at, payload
		 FROM events WHERE stream_id = $1 ORDER BY version`, string(stream))
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return scanRecords(rows)
}

func (s *Store) ReadAll(ctx context.Context, afterSeq int64, limit int) ([]eventstore.Record, error) {
	query := `SELECT global_seq, event_id, stream_id, version, event_type, occurred_at, payload
		FROM events WHERE global_seq > $1 ORDER BY global_seq`
	args := []any{afterSeq}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	return scanRecords(rows)
}

func (s *Store) Version(ctx context.Context, stream eventstore.StreamID) (int64, error) {
	var v int64
	if err := s.querier(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`, string(stream),
	).Scan(&v); err != nil {
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
			eventID  uuid.UUID
			streamID string
			payload  []byte
		)
		if err := rows.Scan(&rec.GlobalSeq, &eventID, &streamID, &rec.Version, &rec.Type, &rec.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.EventID = eventID
		rec.StreamID = eventstore.StreamID(streamID)
		rec.Timestamp = rec.Timestamp.UTC()
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
