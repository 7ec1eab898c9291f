package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"argus/internal/eventstore"
)

const defaultPageSize = 500

// Cache publishes the latest State through an atomic pointer. Readers call
// Current and never block; writers serialize on CatchUp.
type Cache struct {
	store     eventstore.Store
	files     *FileStore
	projector Projector
	logger    *slog.Logger
	pageSize  int
	hooks     []func(*State)

	current atomic.Pointer[State]

	mu           sync.Mutex
	persistedSeq int64
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithSwapHook registers fn to run after every swap. Hooks run on the writer's
// goroutine and must not block.
func WithSwapHook(fn func(*State)) Option {
	return func(c *Cache) {
		c.hooks = append(c.hooks, fn)
	}
}

func WithPageSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func newCache(store eventstore.Store, files *FileStore, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		files:    files,
		logger:   slog.Default(),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(Empty())
	return c
}

// Bootstrap loads the newest usable snapshot (primary, backup, or none) and
// catches it up from the event log. A log that cannot be read is fatal: the
// caller must refuse to start rather than serve a view it cannot verify.
// files may be nil for a replay-only cache.
func Bootstrap(ctx context.Context, store eventstore.Store, files *FileStore, opts ...Option) (*Cache, Source, error) {
	if store == nil {
		return nil, "", fmt.Errorf("event store is required")
	}
	c := newCache(store, files, opts...)

	state, source := Empty(), SourceReplay
	if files != nil {
		loaded, src, err := files.Load()
		if err != nil {
			c.logger.WarnContext(ctx, "no usable snapshot, rebuilding from event log",
				"path", files.Path(),
				"error", err,
			)
		} else {
			state, source = loaded, src
		}
	}

	if state.Seq > 0 {
		ok, err := c.logContains(ctx, state.Seq)
		if err != nil {
			return nil, "", fmt.Errorf("verify snapshot against event log: %w", err)
		}
		if !ok {
			c.logger.WarnContext(ctx, "snapshot is ahead of the event log, rebuilding",
				"snapshot_seq", state.Seq,
			)
			state, source = Empty(), SourceReplay
		}
	}

	c.current.Store(state)
	c.persistedSeq = state.Seq
	if _, err := c.CatchUp(ctx); err != nil {
		return nil, "", fmt.Errorf("replay event log: %w", err)
	}
	c.logger.InfoContext(ctx, "status cache ready",
		"source", string(source),
		"seq", c.Current().Seq,
		"members", len(c.Current().Members),
	)
	return c, source, nil
}

// Current returns the latest published State. It never blocks.
func (c *Cache) Current() *State {
	return c.current.Load()
}

// CatchUp applies every record after the current Seq and swaps in the result.
func (c *Cache) CatchUp(ctx context.Context) (*State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.current.Load()
	state := start
	for {
		records, err := c.store.ReadAll(ctx, state.Seq, c.pageSize)
		if err != nil {
			return start, fmt.Errorf("read event log after seq %d: %w", state.Seq, err)
		}
		if len(records) == 0 {
			break
		}
		state, err = c.projector.Apply(state, records)
		if err != nil {
			return start, err
		}
		if len(records) < c.pageSize {
			break
		}
	}

	if state != start {
		c.current.Store(state)
		for _, hook := range c.hooks {
			hook(state)
		}
	}
	return state, nil
}

// Persist saves the current State when it has advanced since the last save.
func (c *Cache) Persist() error {
	if c.files == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.current.Load()
	if state.Seq == c.persistedSeq {
		return nil
	}
	if err := c.files.Save(state); err != nil {
		return err
	}
	c.persistedSeq = state.Seq
	return nil
}

// Run catches up and persists every interval until ctx is done, then persists
// once more.
func (c *Cache) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.Persist(); err != nil {
				c.logger.Error("final snapshot save failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if _, err := c.CatchUp(ctx); err != nil {
				c.logger.ErrorContext(ctx, "status cache catch-up failed", "error", err)
				continue
			}
			if err := c.Persist(); err != nil {
				c.logger.ErrorContext(ctx, "snapshot save failed", "error", err)
			}
		}
	}
}

func (c *Cache) logContains(ctx context.Context, seq int64) (bool, error) {
	records, err := c.store.ReadAll(ctx, seq-1, 1)
	if err != nil {
		return false, err
	}
	return len(records) == 1 && records[0].GlobalSeq == seq, nil
}
