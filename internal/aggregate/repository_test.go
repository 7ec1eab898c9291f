package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"argus/internal/eventstore"
	"argus/internal/eventstore/memory"
	dErrors "argus/pkg/domain-errors"
)

// counter is a minimal aggregate: a running total of added amounts.
type counter struct {
	Total   int
	Applied int
}

type added struct {
	Amount int `json:"amount"`
}

type addedCodec struct{}

func (addedCodec) Encode(e added) (eventstore.Event, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return eventstore.Event{}, err
	}
	return eventstore.Event{Type: "added", Payload: payload}, nil
}

func (addedCodec) Decode(r eventstore.Record) (added, error) {
	if r.Type != "added" {
		return added{}, fmt.Errorf("unknown event %q", r.Type)
	}
	var e added
	err := json.Unmarshal(r.Payload, &e)
	return e, err
}

func foldCounter(s counter, e added) (counter, error) {
	if e.Amount < 0 {
		return s, errors.New("negative amount")
	}
	s.Total += e.Amount
	s.Applied++
	return s, nil
}

// racingStore appends a competing event before the first n appends it sees.
type racingStore struct {
	eventstore.Store
	races int
}

func (r *racingStore) Append(ctx context.Context, stream eventstore.StreamID, expected int64, events ...eventstore.Event) (int64, error) {
	if r.races > 0 {
		r.races--
		v, err := r.Store.Version(ctx, stream)
		if err != nil {
			return 0, err
		}
		enc, _ := addedCodec{}.Encode(added{Amount: 100})
		if _, err := r.Store.Append(ctx, stream, v, enc); err != nil {
			return 0, err
		}
	}
	return r.Store.Append(ctx, stream, expected, events...)
}

type RepositorySuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.Store
	repo  *Repository[counter, added]
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	repo, err := New[counter, added](s.store, addedCodec{}, foldCounter)
	s.Require().NoError(err)
	s.repo = repo
}

const stream = eventstore.StreamID("counter-1")

func (s *RepositorySuite) TestNew() {
	s.Run("requires store", func() {
		_, err := New[counter, added](nil, addedCodec{}, foldCounter)
		s.Error(err)
	})
	s.Run("requires fold", func() {
		_, err := New[counter, added](s.store, addedCodec{}, nil)
		s.Error(err)
	})
}

func (s *RepositorySuite) TestLoad() {
	s.Run("empty stream is zero state at version zero", func() {
		state, v, err := s.repo.Load(s.ctx, "counter-empty")
		s.Require().NoError(err)
		s.Equal(counter{}, state)
		s.Zero(v)
	})

	s.Run("replay is deterministic", func() {
		_, _, err := s.repo.Save(s.ctx, stream, eventstore.NoStream, counter{}, added{1}, added{2}, added{3})
		s.Require().NoError(err)

		first, v1, err := s.repo.Load(s.ctx, stream)
		s.Require().NoError(err)
		second, v2, err := s.repo.Load(s.ctx, stream)
		s.Require().NoError(err)
		s.Equal(first, second)
		s.Equal(v1, v2)
		s.Equal(counter{Total: 6, Applied: 3}, first)
		s.Equal(int64(3), v1)
	})

	s.Run("undecodable record fails", func() {
		_, err := s.store.Append(s.ctx, "counter-bad", eventstore.NoStream, eventstore.Event{Type: "mystery"})
		s.Require().NoError(err)
		_, _, err = s.repo.Load(s.ctx, "counter-bad")
		s.Error(err)
	})
}

func (s *RepositorySuite) TestSave() {
	s.Run("applies events locally", func() {
		state, v, err := s.repo.Save(s.ctx, "counter-save", eventstore.NoStream, counter{}, added{5})
		s.Require().NoError(err)
		s.Equal(int64(1), v)
		s.Equal(5, state.Total)

		loaded, _, err := s.repo.Load(s.ctx, "counter-save")
		s.Require().NoError(err)
		s.Equal(state, loaded, "local apply matches a reread")
	})

	s.Run("stale version is a coded conflict", func() {
		_, _, err := s.repo.Save(s.ctx, "counter-save", 0, counter{}, added{1})
		s.True(dErrors.HasCode(err, dErrors.CodeConcurrencyConflict))
		s.ErrorIs(err, eventstore.ErrConcurrencyConflict)
	})

	s.Run("existing stream with no stream is already exists", func() {
		_, _, err := s.repo.Save(s.ctx, "counter-save", eventstore.NoStream, counter{}, added{1})
		s.True(dErrors.HasCode(err, dErrors.CodeAggregateAlreadyExists))
	})
}

func (s *RepositorySuite) TestExecute() {
	s.Run("retries after a conflict", func() {
		racing := &racingStore{Store: s.store, races: 1}
		repo, err := New[counter, added](racing, addedCodec{}, foldCounter)
		s.Require().NoError(err)

		calls := 0
		state, v, err := repo.Execute(s.ctx, "counter-race", func(c counter) ([]added, error) {
			calls++
			return []added{{Amount: 1}}, nil
		})
		s.Require().NoError(err)
		s.Equal(2, calls, "decide reruns on the reread state")
		s.Equal(101, state.Total)
		s.Equal(int64(2), v)
	})

	s.Run("gives up after max attempts", func() {
		racing := &racingStore{Store: s.store, races: 10}
		repo, err := New[counter, added](racing, addedCodec{}, foldCounter, WithMaxAttempts(3))
		s.Require().NoError(err)

		calls := 0
		_, _, err = repo.Execute(s.ctx, "counter-starved", func(c counter) ([]added, error) {
			calls++
			return []added{{Amount: 1}}, nil
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConcurrencyConflict))
		s.Equal(3, calls)
	})

	s.Run("decide error is returned unretried", func() {
		boom := dErrors.New(dErrors.CodeInvalidTransition, "nope")
		calls := 0
		_, _, err := s.repo.Execute(s.ctx, "counter-boom", func(c counter) ([]added, error) {
			calls++
			return nil, boom
		})
		s.ErrorIs(err, boom)
		s.Equal(1, calls)
	})

	s.Run("no events is a no-op", func() {
		_, v, err := s.repo.Execute(s.ctx, "counter-noop", func(c counter) ([]added, error) {
			return nil, nil
		})
		s.Require().NoError(err)
		s.Zero(v)
	})
}
