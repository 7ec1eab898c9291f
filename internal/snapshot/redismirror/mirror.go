// Package redismirror copies membership statuses into a Redis hash so other
// processes (the chat bot) can read them without touching the event log.
// It is best effort: failures are logged and retried on the next swap.
package redismirror

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"argus/internal/snapshot"
)

const (
	DefaultKey     = "argus:membership"
	defaultTimeout = 2 * time.Second
)

type Mirror struct {
	client  redis.Cmdable
	key     string
	timeout time.Duration
	logger  *slog.Logger

	pending   chan *snapshot.State
	published *snapshot.State
}

type Option func(*Mirror)

func WithKey(key string) Option {
	return func(m *Mirror) {
		if key != "" {
			m.key = key
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

func New(client redis.Cmdable, opts ...Option) *Mirror {
	m := &Mirror{
		client:  client,
		key:     DefaultKey,
		timeout: defaultTimeout,
		logger:  slog.Default(),
		pending: make(chan *snapshot.State, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify queues state for publishing without blocking. Only the newest queued
// state is kept. Suitable as a snapshot.WithSwapHook.
func (m *Mirror) Notify(state *snapshot.State) {
	for {
		select {
		case m.pending <- state:
			return
		default:
		}
		select {
		case <-m.pending:
		default:
		}
	}
}

// Run publishes queued states until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case state := <-m.pending:
			if err := m.Publish(ctx, state); err != nil {
				m.logger.WarnContext(ctx, "redis mirror publish failed",
					"seq", state.Seq,
					"error", err,
				)
			}
		}
	}
}

// Publish writes the statuses that changed since the last successful publish.
// The first publish replaces the whole hash.
func (m *Mirror) Publish(ctx context.Context, state *snapshot.State) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	fields := make(map[string]any)
	for player, member := range state.Members {
		if m.published != nil {
			if prev, ok := m.published.Members[player]; ok && prev.Status == member.Status {
				continue
			}
		}
		fields[player.String()] = member.Status.String()
	}

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if m.published == nil {
			pipe.Del(ctx, m.key)
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, m.key, fields)
		}
		pipe.Set(ctx, m.key+":seq", state.Seq, 0)
		return nil
	})
	if err != nil {
		return err
	}
	m.published = state
	return nil
}
