package application

import (
	"errors"
	"fmt"
	"time"

	"argus/pkg/domain"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

var ErrUnknownEvent = errors.New("unknown application event")

// State is the fold of an application stream. The zero value has no events.
type State struct {
	ID           domain.ApplicationID
	Player       domain.PlayerID
	GameAccount  domain.GameAccountID
	GameUsername string
	Details      string
	Status       Status
	LastActor    domain.PlayerID
	LastReason   string
	Notes        string
	SubmittedAt  time.Time
	DecidedAt    time.Time
	Reopens      int
}

func (s State) Exists() bool { return s.Status != "" }

// IsOpen reports whether the application still awaits a decision.
func (s State) IsOpen() bool { return s.Status == StatusPending }

func Fold(s State, e Event) (State, error) {
	switch evt := e.(type) {
	case Submitted:
		if s.Exists() {
			return s, fmt.Errorf("application %s: submitted twice", evt.Application)
		}
		s.ID = evt.Application
		s.Player = evt.Player
		s.GameAccount = evt.GameAccount
		s.GameUsername = evt.GameUsername
		s.Details = evt.Details
		s.Status = StatusPending
		s.LastActor = evt.Player
		s.SubmittedAt = evt.At
		return s, nil
	case Approved:
		if !s.Exists() {
			return s, fmt.Errorf("application %s: approved before submitted", evt.Application)
		}
		s.Status = StatusApproved
		s.LastActor = evt.Actor
		s.LastReason = ""
		s.Notes = evt.Notes
		s.DecidedAt = evt.At
		return s, nil
	case Rejected:
		if !s.Exists() {
			return s, fmt.Errorf("application %s: rejected before submitted", evt.Application)
		}
		s.Status = StatusRejected
		s.LastActor = evt.Actor
		s.LastReason = evt.Reason
		s.Notes = evt.Notes
		s.DecidedAt = evt.At
		return s, nil
	case Reopened:
		if !s.Exists() {
			return s, fmt.Errorf("application %s: reopened before submitted", evt.Application)
		}
		s.Status = StatusPending
		s.LastActor = evt.Actor
		s.LastReason = evt.Reason
		s.DecidedAt = time.Time{}
		s.Reopens++
		return s, nil
	default:
		return s, fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
}
