package membership

import (
	"argus/internal/aggregate"
	"argus/internal/eventstore"
	"argus/pkg/domain"
)

type Repository = aggregate.Repository[State, Event]

func NewRepository(store eventstore.Store, opts ...aggregate.Option) (*Repository, error) {
	return aggregate.New[State, Event](store, Codec{}, Fold, opts...)
}

// Stream returns the stream holding player's membership.
func Stream(player domain.PlayerID) eventstore.StreamID {
	return eventstore.MembershipStream(domain.MembershipIDFor(player))
}
