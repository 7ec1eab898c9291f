package application

import (
	"argus/internal/aggregate"
	"argus/internal/eventstore"
	"argus/pkg/domain"
)

type Repository = aggregate.Repository[State, Event]

func NewRepository(store eventstore.Store, opts ...aggregate.Option) (*Repository, error) {
	return aggregate.New[State, Event](store, Codec{}, Fold, opts...)
}

func Stream(id domain.ApplicationID) eventstore.StreamID {
	return eventstore.ApplicationStream(id)
}
