// Package storetest is the behavioral contract every eventstore backend passes.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"argus/internal/eventstore"
)

// Suite runs against a fresh store per test. Backends embed it via suite.Run.
type Suite struct {
	suite.Suite
	NewStore func(t *testing.T) eventstore.Store

	store eventstore.Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.store = s.NewStore(s.T())
	s.ctx = context.Background()
}

func evt(typ string, payload string) eventstore.Event {
	return eventstore.Event{Type: typ, Payload: json.RawMessage(payload)}
}

// ============================================================================
// Append contract
// ============================================================================

func (s *Suite) TestAppend() {
	s.Run("no stream creates", func() {
		v, err := s.store.Append(s.ctx, "membership-100", eventstore.NoStream, evt("created", `{"a":1}`))
		s.Require().NoError(err)
		s.Equal(int64(1), v)
	})

	s.Run("no stream on existing stream fails", func() {
		_, err := s.store.Append(s.ctx, "membership-101", eventstore.NoStream, evt("created", `{}`))
		s.Require().NoError(err)

		_, err = s.store.Append(s.ctx, "membership-101", eventstore.NoStream, evt("created", `{}`))
		s.ErrorIs(err, eventstore.ErrAggregateAlreadyExists)
	})

	s.Run("expected zero on empty stream matches", func() {
		v, err := s.store.Append(s.ctx, "membership-102", 0, evt("created", `{}`))
		s.Require().NoError(err)
		s.Equal(int64(1), v)
	})

	s.Run("stale expected version conflicts", func() {
		_, err := s.store.Append(s.ctx, "membership-103", eventstore.NoStream, evt("created", `{}`), evt("changed", `{}`))
		s.Require().NoError(err)

		_, err = s.store.Append(s.ctx, "membership-103", 1, evt("changed", `{}`))
		s.ErrorIs(err, eventstore.ErrConcurrencyConflict)

		_, err = s.store.Append(s.ctx, "membership-103", 5, evt("changed", `{}`))
		s.ErrorIs(err, eventstore.ErrConcurrencyConflict)

		v, err := s.store.Version(s.ctx, "membership-103")
		s.Require().NoError(err)
		s.Equal(int64(2), v, "failed appends leave the stream untouched")
	})

	s.Run("batch versions are contiguous", func() {
		v, err := s.store.Append(s.ctx, "application-a", eventstore.NoStream, evt("submitted", `{}`))
		s.Require().NoError(err)
		v, err = s.store.Append(s.ctx, "application-a", v, evt("rejected", `{}`), evt("reopened", `{}`))
		s.Require().NoError(err)
		s.Equal(int64(3), v)

		recs, err := s.store.ReadStream(s.ctx, "application-a")
		s.Require().NoError(err)
		s.Require().Len(recs, 3)
		for i, r := range recs {
			s.Equal(int64(i+1), r.Version)
		}
	})

	s.Run("empty append rejected", func() {
		_, err := s.store.Append(s.ctx, "membership-104", eventstore.NoStream)
		s.ErrorIs(err, eventstore.ErrEmptyAppend)
	})

	s.Run("invalid stream rejected", func() {
		_, err := s.store.Append(s.ctx, "bogus", eventstore.NoStream, evt("x", `{}`))
		s.ErrorIs(err, eventstore.ErrInvalidStream)
	})
}

func (s *Suite) TestConflictIffVersionMismatch() {
	stream := eventstore.StreamID("membership-200")
	for actual := int64(0); actual < 4; actual++ {
		for expected := int64(-1); expected < 5; expected++ {
			_, err := s.store.Append(s.ctx, stream, expected, evt("ping", `{}`))
			matches := expected == actual || (expected == eventstore.NoStream && actual == 0)
			if matches {
				s.Require().NoError(err, "expected=%d actual=%d", expected, actual)
				break
			}
			s.Require().Error(err, "expected=%d actual=%d", expected, actual)
		}
	}
	v, err := s.store.Version(s.ctx, stream)
	s.Require().NoError(err)
	s.Equal(int64(4), v)
}

// ============================================================================
// Reads
// ============================================================================

func (s *Suite) TestReadStream() {
	s.Run("missing stream is empty", func() {
		recs, err := s.store.ReadStream(s.ctx, "membership-missing")
		s.Require().NoError(err)
		s.Empty(recs)

		v, err := s.store.Version(s.ctx, "membership-missing")
		s.Require().NoError(err)
		s.Zero(v)
	})

	s.Run("round trips event fields", func() {
		id := uuid.New()
		ts := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
		_, err := s.store.Append(s.ctx, "membership-300", eventstore.NoStream, eventstore.Event{
			ID: id, Type: "created", Timestamp: ts, Payload: json.RawMessage(`{"status":"PENDING"}`),
		})
		s.Require().NoError(err)

		recs, err := s.store.ReadStream(s.ctx, "membership-300")
		s.Require().NoError(err)
		s.Require().Len(recs, 1)
		r := recs[0]
		s.Equal(id, r.EventID)
		s.Equal(eventstore.StreamID("membership-300"), r.StreamID)
		s.Equal("created", r.Type)
		s.True(ts.Equal(r.Timestamp), "timestamp %v != %v", r.Timestamp, ts)
		s.JSONEq(`{"status":"PENDING"}`, string(r.Payload))
		s.Positive(r.GlobalSeq)
	})
}

func (s *Suite) TestReadAll() {
	_, err := s.store.Append(s.ctx, "membership-1", eventstore.NoStream, evt("a", `{}`))
	s.Require().NoError(err)
	_, err = s.store.Append(s.ctx, "application-x", eventstore.NoStream, evt("b", `{}`))
	s.Require().NoError(err)
	_, err = s.store.Append(s.ctx, "membership-1", 1, evt("c", `{}`), evt("d", `{}`))
	s.Require().NoError(err)

	s.Run("global append order", func() {
		recs, err := s.store.ReadAll(s.ctx, 0, 0)
		s.Require().NoError(err)
		s.Require().Len(recs, 4)
		var types []string
		for i, r := range recs {
			types = append(types, r.Type)
			if i > 0 {
				s.Greater(r.GlobalSeq, recs[i-1].GlobalSeq)
			}
		}
		s.Equal([]string{"a", "b", "c", "d"}, types)
	})

	s.Run("after seq and limit", func() {
		all, err := s.store.ReadAll(s.ctx, 0, 0)
		s.Require().NoError(err)

		recs, err := s.store.ReadAll(s.ctx, all[0].GlobalSeq, 2)
		s.Require().NoError(err)
		s.Require().Len(recs, 2)
		s.Equal("b", recs[0].Type)
		s.Equal("c", recs[1].Type)

		recs, err = s.store.ReadAll(s.ctx, all[3].GlobalSeq, 10)
		s.Require().NoError(err)
		s.Empty(recs)
	})
}

// ============================================================================
// Concurrency
// ============================================================================

func (s *Suite) TestConcurrentWritersSameStream() {
	const writers = 8
	stream := eventstore.StreamID("membership-400")
	_, err := s.store.Append(s.ctx, stream, eventstore.NoStream, evt("created", `{}`))
	s.Require().NoError(err)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.store.Append(s.ctx, stream, 1, evt("changed", fmt.Sprintf(`{"writer":%d}`, i)))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, eventstore.ErrConcurrencyConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one writer wins the version")
	s.Equal(int32(writers-1), conflicts.Load())
}

func (s *Suite) TestConcurrentWritersDistinctStreams() {
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stream := eventstore.StreamID(fmt.Sprintf("membership-5%02d", i))
			_, err := s.store.Append(s.ctx, stream, eventstore.NoStream, evt("created", `{}`))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	recs, err := s.store.ReadAll(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Len(recs, writers)
}
