package snapshot

import (
	"fmt"

	"argus/internal/application"
	"argus/internal/eventstore"
	"argus/internal/membership"
)

// Projector folds log records into State using the aggregates' own folds.
type Projector struct {
	memberships  membership.Codec
	applications application.Codec
}

// Apply returns a new State with records after prev.Seq applied. prev is not
// modified. Records at or below prev.Seq are skipped, so overlapping reads are
// harmless.
func (p Projector) Apply(prev *State, records []eventstore.Record) (*State, error) {
	if prev == nil {
		prev = Empty()
	}
	if len(records) == 0 || records[len(records)-1].GlobalSeq <= prev.Seq {
		return prev, nil
	}
	next := prev.clone()
	for _, rec := range records {
		if rec.GlobalSeq <= next.Seq {
			continue
		}
		if err := p.apply(next, rec); err != nil {
			return nil, fmt.Errorf("project seq %d (%s v%d): %w", rec.GlobalSeq, rec.StreamID, rec.Version, err)
		}
		next.Seq = rec.GlobalSeq
	}
	return next, nil
}

func (p Projector) apply(s *State, rec eventstore.Record) error {
	switch rec.StreamID.Kind() {
	case eventstore.KindMembership:
		evt, err := p.memberships.Decode(rec)
		if err != nil {
			return err
		}
		player := evt.MembershipID().PlayerID()
		folded, err := membership.Fold(s.Members[player], evt)
		if err != nil {
			return err
		}
		s.Members[player] = folded
		return nil
	case eventstore.KindApplication:
		evt, err := p.applications.Decode(rec)
		if err != nil {
			return err
		}
		id := evt.ApplicationID()
		folded, err := application.Fold(s.Applications[id], evt)
		if err != nil {
			return err
		}
		s.Applications[id] = folded
		p.index(s, folded)
		return nil
	default:
		// Streams this build does not know about are skipped, not fatal.
		return nil
	}
}

// index keeps the open application and account lookups in step with app.
func (p Projector) index(s *State, app application.State) {
	switch app.Status {
	case application.StatusPending:
		s.OpenApplications[app.Player] = app.ID
		if _, claimed := s.Accounts[app.GameAccount]; !claimed {
			s.Accounts[app.GameAccount] = app.Player
		}
	case application.StatusApproved:
		if s.OpenApplications[app.Player] == app.ID {
			delete(s.OpenApplications, app.Player)
		}
		s.Accounts[app.GameAccount] = app.Player
	case application.StatusRejected:
		if s.OpenApplications[app.Player] == app.ID {
			delete(s.OpenApplications, app.Player)
		}
		if s.Accounts[app.GameAccount] == app.Player && !s.approvedFor(app.Player, app.GameAccount) {
			delete(s.Accounts, app.GameAccount)
		}
	}
}
