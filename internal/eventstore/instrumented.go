package eventstore

import (
	"context"
	"errors"
	"time"

	"argus/internal/eventstore/metrics"
)

// Instrumented decorates a Store with Prometheus metrics.
type Instrumented struct {
	next    Store
	metrics *metrics.Metrics
}

func Instrument(next Store, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (s *Instrumented) Append(ctx context.Context, stream StreamID, expectedVersion int64, events ...Event) (int64, error) {
	start := time.Now()
	version, err := s.next.Append(ctx, stream, expectedVersion, events...)
	s.metrics.ObserveAppend(appendResult(err), len(events), time.Since(start))
	return version, err
}

func (s *Instrumented) ReadStream(ctx context.Context, stream StreamID) ([]Record, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRead("stream", time.Since(start)) }()
	return s.next.ReadStream(ctx, stream)
}

func (s *Instrumented) ReadAll(ctx context.Context, afterSeq int64, limit int) ([]Record, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRead("all", time.Since(start)) }()
	return s.next.ReadAll(ctx, afterSeq, limit)
}

func (s *Instrumented) Version(ctx context.Context, stream StreamID) (int64, error) {
	return s.next.Version(ctx, stream)
}

func appendResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrAggregateAlreadyExists):
		return "exists"
	default:
		return "error"
	}
}
