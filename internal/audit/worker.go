package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"argus/internal/eventstore"
)

const defaultPageSize = 500

// Sink receives entries after they are stored. Delivery is at least once:
// a sink that fails sees the same entries again on the next step.
type Sink interface {
	Name() string
	Publish(ctx context.Context, entries []Entry) error
}

// Worker tails the event log into a Store and forwards new entries to sinks.
type Worker struct {
	log       eventstore.Store
	store     Store
	projector *Projector
	sinks     []sinkCursor
	warmed    bool
	pageSize  int
	logger    *slog.Logger
}

type sinkCursor struct {
	sink Sink
	seq  int64
}

type WorkerOption func(*Worker)

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithSink forwards entries after seq to sink.
func WithSink(sink Sink, afterSeq int64) WorkerOption {
	return func(w *Worker) {
		w.sinks = append(w.sinks, sinkCursor{sink: sink, seq: afterSeq})
	}
}

func WithPageSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.pageSize = n
		}
	}
}

func NewWorker(log eventstore.Store, store Store, opts ...WorkerOption) (*Worker, error) {
	if log == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	w := &Worker{
		log:       log,
		store:     store,
		projector: NewProjector(),
		pageSize:  defaultPageSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Step projects every record not yet stored, then feeds each sink. It returns
// the number of entries projected.
func (w *Worker) Step(ctx context.Context) (int, error) {
	last, err := w.store.LastSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("read audit position: %w", err)
	}
	if !w.warmed {
		// Applicant lookups need the application history that precedes last.
		if err := w.warm(ctx, last); err != nil {
			return 0, err
		}
		w.warmed = true
	}

	projected := 0
	for {
		records, err := w.log.ReadAll(ctx, last, w.pageSize)
		if err != nil {
			return projected, fmt.Errorf("read event log after seq %d: %w", last, err)
		}
		if len(records) == 0 {
			break
		}
		entries := make([]Entry, 0, len(records))
		for _, rec := range records {
			entry, err := w.projector.Project(rec)
			if err != nil {
				return projected, err
			}
			entries = append(entries, entry)
		}
		if err := w.store.Append(ctx, entries...); err != nil {
			return projected, fmt.Errorf("store audit entries: %w", err)
		}
		projected += len(entries)
		last = entries[len(entries)-1].Seq
		if len(records) < w.pageSize {
			break
		}
	}

	for i := range w.sinks {
		w.feed(ctx, &w.sinks[i])
	}
	return projected, nil
}

func (w *Worker) warm(ctx context.Context, upTo int64) error {
	var after int64
	for after < upTo {
		records, err := w.log.ReadAll(ctx, after, w.pageSize)
		if err != nil {
			return fmt.Errorf("read event log after seq %d: %w", after, err)
		}
		if len(records) == 0 {
			return nil
		}
		for _, rec := range records {
			if rec.GlobalSeq > upTo {
				return nil
			}
			if rec.StreamID.Kind() == eventstore.KindApplication {
				if _, err := w.projector.Project(rec); err != nil {
					return err
				}
			}
			after = rec.GlobalSeq
		}
	}
	return nil
}

func (w *Worker) feed(ctx context.Context, c *sinkCursor) {
	for {
		entries, err := w.store.List(ctx, Filter{AfterSeq: c.seq, Limit: w.pageSize})
		if err != nil {
			w.logger.ErrorContext(ctx, "audit sink read failed", "sink", c.sink.Name(), "error", err)
			return
		}
		if len(entries) == 0 {
			return
		}
		if err := c.sink.Publish(ctx, entries); err != nil {
			w.logger.WarnContext(ctx, "audit sink publish failed, will retry",
				"sink", c.sink.Name(),
				"after_seq", c.seq,
				"error", err,
			)
			return
		}
		c.seq = entries[len(entries)-1].Seq
		if len(entries) < w.pageSize {
			return
		}
	}
}

// Run steps every interval until ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.Step(ctx); err != nil {
		w.logger.ErrorContext(ctx, "audit projection failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Step(ctx); err != nil {
				w.logger.ErrorContext(ctx, "audit projection failed", "error", err)
			}
		}
	}
}
