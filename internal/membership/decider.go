package membership

import (
	"errors"
	"fmt"
	"time"

	"argus/pkg/domain"
	dErrors "argus/pkg/domain-errors"
)

var ErrInvalidTransition = errors.New("invalid membership transition")

// Create opens the membership for player. Only valid on an empty stream.
func Create(s State, player domain.PlayerID, initial Status, reason string, actor domain.PlayerID, now time.Time) (Created, error) {
	if player.IsNil() {
		return Created{}, dErrors.New(dErrors.CodeInvalidInput, "player id is required")
	}
	if !initial.IsValid() {
		return Created{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown status %q", initial))
	}
	if s.Exists() {
		return Created{}, dErrors.New(dErrors.CodeAggregateAlreadyExists,
			fmt.Sprintf("membership %s already exists", s.ID))
	}
	return Created{
		Membership:    domain.MembershipIDFor(player),
		InitialStatus: initial,
		Reason:        reason,
		Actor:         actor,
		At:            now.UTC(),
	}, nil
}

// ChangeStatus moves an existing membership to next, per the transition table.
func ChangeStatus(s State, next Status, reason string, actor domain.PlayerID, now time.Time) (StatusChanged, error) {
	if !s.Exists() {
		return StatusChanged{}, dErrors.New(dErrors.CodeAggregateNotFound, "membership does not exist")
	}
	if !next.IsValid() {
		return StatusChanged{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown status %q", next))
	}
	if !CanTransition(s.Status, next) {
		return StatusChanged{}, dErrors.Wrap(
			fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next),
			dErrors.CodeInvalidTransition,
			fmt.Sprintf("membership %s cannot move from %s to %s", s.ID, s.Status, next),
		)
	}
	return StatusChanged{
		Membership: s.ID,
		NewStatus:  next,
		OldStatus:  s.Status,
		Reason:     reason,
		Actor:      actor,
		At:         now.UTC(),
	}, nil
}
