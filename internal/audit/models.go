// Package audit projects the event log into a human-readable history.
//
// Every appended event yields exactly one Entry, in global append order,
// corrections included. Nothing is merged or summarized.
package audit

import (
	"context"
	"time"

	"argus/pkg/domain"
)

// Entry is one line of history.
type Entry struct {
	Seq       int64           `json:"seq"`
	Stream    string          `json:"stream"`
	Version   int64           `json:"version"`
	Type      string          `json:"type"`
	Subject   string          `json:"subject"`
	Player    domain.PlayerID `json:"player,omitempty"`
	Actor     domain.PlayerID `json:"actor,omitempty"`
	Status    string          `json:"status,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ActorName renders the actor, or "system" when none was recorded.
func (e Entry) ActorName() string {
	if e.Actor.IsNil() {
		return "system"
	}
	return e.Actor.String()
}

// Filter selects entries. Subject matches either the aggregate id or the
// player the entry concerns. A zero Limit means no limit.
type Filter struct {
	Subject  string
	AfterSeq int64
	Limit    int
}

func (f Filter) Matches(e Entry) bool {
	if e.Seq <= f.AfterSeq {
		return false
	}
	return f.Subject == "" || e.Subject == f.Subject || e.Player.String() == f.Subject
}

// Store keeps projected entries. Append must ignore entries at or below the
// highest stored Seq so a replayed page cannot duplicate history.
type Store interface {
	Append(ctx context.Context, entries ...Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
	LastSeq(ctx context.Context) (int64, error)
}
