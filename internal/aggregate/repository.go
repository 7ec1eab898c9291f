// Package aggregate rehydrates event-sourced aggregates and appends their
// decisions with optimistic concurrency.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"argus/internal/eventstore"
	dErrors "argus/pkg/domain-errors"
)

// DefaultMaxAttempts bounds Execute's reread-and-retry loop.
const DefaultMaxAttempts = 3

// Codec maps one aggregate family's events to and from store records.
type Codec[E any] interface {
	Encode(E) (eventstore.Event, error)
	Decode(eventstore.Record) (E, error)
}

// Fold applies one event to a state. It must be pure.
type Fold[S, E any] func(S, E) (S, error)

type Repository[S, E any] struct {
	store       eventstore.Store
	codec       Codec[E]
	fold        Fold[S, E]
	maxAttempts int
	logger      *slog.Logger
}

type options struct {
	maxAttempts int
	logger      *slog.Logger
}

type Option func(*options)

func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func New[S, E any](store eventstore.Store, codec Codec[E], fold Fold[S, E], opts ...Option) (*Repository[S, E], error) {
	if store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if fold == nil {
		return nil, fmt.Errorf("fold is required")
	}
	o := options{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[S, E]{
		store:       store,
		codec:       codec,
		fold:        fold,
		maxAttempts: o.maxAttempts,
		logger:      o.logger,
	}, nil
}

// Load replays the stream into the zero state. An empty stream yields the zero
// state and version 0.
func (r *Repository[S, E]) Load(ctx context.Context, stream eventstore.StreamID) (S, int64, error) {
	var state S
	records, err := r.store.ReadStream(ctx, stream)
	if err != nil {
		return state, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read stream")
	}
	state, err = r.Replay(state, records)
	if err != nil {
		return state, 0, err
	}
	var version int64
	if n := len(records); n > 0 {
		version = records[n-1].Version
	}
	return state, version, nil
}

// Replay folds records onto state in order.
func (r *Repository[S, E]) Replay(state S, records []eventstore.Record) (S, error) {
	for _, rec := range records {
		evt, err := r.codec.Decode(rec)
		if err != nil {
			return state, dErrors.Wrap(err, dErrors.CodeInternal,
				fmt.Sprintf("failed to decode %s v%d", rec.StreamID, rec.Version))
		}
		state, err = r.fold(state, evt)
		if err != nil {
			return state, dErrors.Wrap(err, dErrors.CodeInternal,
				fmt.Sprintf("failed to fold %s v%d", rec.StreamID, rec.Version))
		}
	}
	return state, nil
}

// Save appends events at expectedVersion and returns state with the events
// applied locally, without rereading the stream.
func (r *Repository[S, E]) Save(ctx context.Context, stream eventstore.StreamID, expectedVersion int64, state S, events ...E) (S, int64, error) {
	if len(events) == 0 {
		return state, max(expectedVersion, 0), nil
	}
	encoded := make([]eventstore.Event, len(events))
	for i, evt := range events {
		enc, err := r.codec.Encode(evt)
		if err != nil {
			return state, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode event")
		}
		encoded[i] = enc
	}

	version, err := r.store.Append(ctx, stream, expectedVersion, encoded...)
	if err != nil {
		return state, 0, translateAppendError(err)
	}

	next := state
	for _, evt := range events {
		next, err = r.fold(next, evt)
		if err != nil {
			return state, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply appended event")
		}
	}
	return next, version, nil
}

// Execute loads the aggregate, asks decide for new events and saves them. A
// concurrency conflict rereads and retries up to the configured attempts. A
// decide that returns no events is a no-op.
func (r *Repository[S, E]) Execute(ctx context.Context, stream eventstore.StreamID, decide func(S) ([]E, error)) (S, int64, error) {
	var (
		state   S
		version int64
		err     error
	)
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		state, version, err = r.Load(ctx, stream)
		if err != nil {
			return state, 0, err
		}
		events, err := decide(state)
		if err != nil {
			return state, version, err
		}
		if len(events) == 0 {
			return state, version, nil
		}
		next, newVersion, err := r.Save(ctx, stream, version, state, events...)
		if err == nil {
			return next, newVersion, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeConcurrencyConflict) {
			return state, version, err
		}
		if r.logger != nil {
			r.logger.DebugContext(ctx, "stream conflict, retrying",
				"stream", stream.String(),
				"attempt", attempt,
				"expected_version", version,
			)
		}
		if attempt == r.maxAttempts {
			return state, version, dErrors.Wrap(err, dErrors.CodeConcurrencyConflict,
				fmt.Sprintf("gave up after %d attempts", r.maxAttempts))
		}
	}
	return state, version, nil
}

func translateAppendError(err error) error {
	switch {
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrencyConflict, "stream changed concurrently")
	case errors.Is(err, eventstore.ErrAggregateAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeAggregateAlreadyExists, "aggregate already exists")
	case errors.Is(err, eventstore.ErrEmptyAppend), errors.Is(err, eventstore.ErrInvalidStream):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid append")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append events")
	}
}
