// Package memory is an in-process event store for tests and ephemeral runs.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"argus/internal/eventstore"
)

type Store struct {
	locks *eventstore.StreamLocks

	mu      sync.RWMutex
	log     []eventstore.Record
	streams map[eventstore.StreamID][]int // indexes into log
	now     func() time.Time
}

func New() *Store {
	return &Store{
		locks:   eventstore.NewStreamLocks(),
		streams: make(map[eventstore.StreamID][]int),
		now:     time.Now,
	}
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

	// The stream lock keeps the version stable between the check and the write;
	// mu only guards the shared log while records are linked in.
	s.mu.RLock()
	current := int64(len(s.streams[stream]))
	s.mu.RUnlock()
	if err := eventstore.CheckExpected(stream, expectedVersion, current); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range prepared {
		current++
		rec := eventstore.Record{
			EventID:   evt.ID,
			StreamID:  stream,
			Version:   current,
			GlobalSeq: int64(len(s.log)) + 1,
			Type:      evt.Type,
			Timestamp: evt.Timestamp,
			Payload:   slices.Clone(evt.Payload),
		}
		s.log = append(s.log, rec)
		s.streams[stream] = append(s.streams[stream], len(s.log)-1)
	}
	return current, nil
}

func (s *Store) ReadStream(ctx context.Context, stream eventstore.StreamID) ([]eventstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.streams[stream]
	out := make([]eventstore.Record, 0, len(idx))
	for _, i := range idx {
		out = append(out, copyRecord(s.log[i]))
	}
	return out, nil
}

func (s *Store) ReadAll(ctx context.Context, afterSeq int64, limit int) ([]eventstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(s.log)) {
		return []eventstore.Record{}, nil
	}
	tail := s.log[afterSeq:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]eventstore.Record, len(tail))
	for i, rec := range tail {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

func (s *Store) Version(ctx context.Context, stream eventstore.StreamID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.streams[stream])), nil
}

func copyRecord(r eventstore.Record) eventstore.Record {
	r.Payload = slices.Clone(r.Payload)
	return r
}
