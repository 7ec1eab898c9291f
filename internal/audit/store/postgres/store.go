// Package postgres keeps projected audit entries in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"argus/internal/audit"
	"argus/pkg/domain"
	txcontext "argus/pkg/platform/tx"
)

// Schema creates the audit_entries table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq         BIGINT      PRIMARY KEY,
	stream_id   TEXT        NOT NULL,
	version     BIGINT      NOT NULL,
	event_type  TEXT        NOT NULL,
	subject     TEXT        NOT NULL,
	player_id   TEXT        NOT NULL DEFAULT '',
	actor_id    TEXT        NOT NULL DEFAULT '',
	status      TEXT        NOT NULL DEFAULT '',
	reason      TEXT        NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_subject_idx ON audit_entries (subject, seq);
CREATE INDEX IF NOT EXISTS audit_entries_player_idx ON audit_entries (player_id, seq);
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts entries in one transaction. Entries already stored are
// ignored, so a replayed page is harmless.
func (s *Store) Append(ctx context.Context, entries ...audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		const query = `
			INSERT INTO audit_entries (
				seq, stream_id, version, event_type, subject,
				player_id, actor_id, status, reason, occurred_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (seq) DO NOTHING
		`
		for _, e := range entries {
			_, err := s.execer(ctx).ExecContext(ctx, query,
				e.Seq,
				e.Stream,
				e.Version,
				e.Type,
				e.Subject,
				e.Player.String(),
				e.Actor.String(),
				e.Status,
				e.Reason,
				e.Timestamp,
			)
			if err != nil {
				return fmt.Errorf("insert audit entry %d: %w", e.Seq, err)
			}
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var (
		where = []string{"seq > $1"}
		args  = []any{filter.AfterSeq}
	)
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		where = append(where, fmt.Sprintf("(subject = $%d OR player_id = $%d)", len(args), len(args)))
	}
	query := `
		SELECT seq, stream_id, version, event_type, subject,
			   player_id, actor_id, status, reason, occurred_at
		FROM audit_entries
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY seq ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e             audit.Entry
			player, actor string
		)
		if err := rows.Scan(
			&e.Seq,
			&e.Stream,
			&e.Version,
			&e.Type,
			&e.Subject,
			&player,
			&actor,
			&e.Status,
			&e.Reason,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Player, e.Actor = domain.PlayerID(player), domain.PlayerID(actor)
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM audit_entries`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query audit position: %w", err)
	}
	return seq, nil
}
