package application

import (
	"time"

	"argus/pkg/domain"
)

const (
	EventTypeSubmitted = "application.submitted"
	EventTypeApproved  = "application.approved"
	EventTypeRejected  = "application.rejected"
	EventTypeReopened  = "application.reopened"
)

// Event is the sealed family of application events.
type Event interface {
	isApplicationEvent()
	EventType() string
	ApplicationID() domain.ApplicationID
	OccurredAt() time.Time
}

type Submitted struct {
	Application  domain.ApplicationID
	Player       domain.PlayerID
	GameAccount  domain.GameAccountID
	GameUsername string
	Details      string
	At           time.Time
}

type Approved struct {
	Application domain.ApplicationID
	Actor       domain.PlayerID
	Notes       string
	At          time.Time
}

type Rejected struct {
	Application domain.ApplicationID
	Actor       domain.PlayerID
	Reason      string
	Notes       string
	At          time.Time
}

type Reopened struct {
	Application domain.ApplicationID
	Actor       domain.PlayerID
	Reason      string
	At          time.Time
}

func (Submitted) isApplicationEvent() {}
func (Approved) isApplicationEvent()  {}
func (Rejected) isApplicationEvent()  {}
func (Reopened) isApplicationEvent()  {}

func (Submitted) EventType() string { return EventTypeSubmitted }
func (Approved) EventType() string  { return EventTypeApproved }
func (Rejected) EventType() string  { return EventTypeRejected }
func (Reopened) EventType() string  { return EventTypeReopened }

func (e Submitted) ApplicationID() domain.ApplicationID { return e.Application }
func (e Approved) ApplicationID() domain.ApplicationID  { return e.Application }
func (e Rejected) ApplicationID() domain.ApplicationID  { return e.Application }
func (e Reopened) ApplicationID() domain.ApplicationID  { return e.Application }

func (e Submitted) OccurredAt() time.Time { return e.At }
func (e Approved) OccurredAt() time.Time  { return e.At }
func (e Rejected) OccurredAt() time.Time  { return e.At }
func (e Reopened) OccurredAt() time.Time  { return e.At }
