package membership

import (
	"time"

	"argus/pkg/domain"
)

const (
	EventTypeCreated       = "membership.created"
	EventTypeStatusChanged = "membership.status_changed"
)

// Event is the sealed family of membership events.
type Event interface {
	isMembershipEvent()
	EventType() string
	MembershipID() domain.MembershipID
	OccurredAt() time.Time
}

// Created opens a membership stream. Actor is empty for system actions.
type Created struct {
	Membership    domain.MembershipID
	InitialStatus Status
	Reason        string
	Actor         domain.PlayerID
	At            time.Time
}

// StatusChanged moves a membership to NewStatus. OldStatus may be empty when the
// writer did not know it; Actor is empty for system actions.
type StatusChanged struct {
	Membership domain.MembershipID
	NewStatus  Status
	OldStatus  Status
	Reason     string
	Actor      domain.PlayerID
	At         time.Time
}

func (Created) isMembershipEvent()       {}
func (StatusChanged) isMembershipEvent() {}

func (Created) EventType() string       { return EventTypeCreated }
func (StatusChanged) EventType() string { return EventTypeStatusChanged }

func (e Created) MembershipID() domain.MembershipID       { return e.Membership }
func (e StatusChanged) MembershipID() domain.MembershipID { return e.Membership }

func (e Created) OccurredAt() time.Time       { return e.At }
func (e StatusChanged) OccurredAt() time.Time { return e.At }
