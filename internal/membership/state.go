package membership

import (
	"errors"
	"fmt"
	"time"

	"argus/pkg/domain"
)

var ErrUnknownEvent = errors.New("unknown membership event")

// State is the fold of a membership stream. The zero value is a stream that has
// no events yet.
type State struct {
	ID        domain.MembershipID
	Status    Status
	Reason    string
	Actor     domain.PlayerID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s State) Exists() bool { return s.Status != "" }

// Fold applies e to s. History is authoritative, so Fold does not re-check the
// transition table; it only rejects streams that cannot be well formed.
func Fold(s State, e Event) (State, error) {
	switch evt := e.(type) {
	case Created:
		if s.Exists() {
			return s, fmt.Errorf("membership %s: created twice", evt.Membership)
		}
		s.ID = evt.Membership
		s.Status = evt.InitialStatus
		s.Reason = evt.Reason
		s.Actor = evt.Actor
		s.CreatedAt = evt.At
		s.UpdatedAt = evt.At
		return s, nil
	case StatusChanged:
		if !s.Exists() {
			return s, fmt.Errorf("membership %s: status changed before created", evt.Membership)
		}
		s.Status = evt.NewStatus
		s.Reason = evt.Reason
		s.Actor = evt.Actor
		s.UpdatedAt = evt.At
		return s, nil
	default:
		return s, fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
}
