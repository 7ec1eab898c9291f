package audit

import (
	"errors"
	"fmt"

	"argus/internal/application"
	"argus/internal/eventstore"
	"argus/internal/membership"
	"argus/pkg/domain"
)

var ErrUnknownStream = errors.New("unknown stream kind")

// Projector turns records into entries. It remembers which player submitted
// each application so later decisions can be listed under that player.
type Projector struct {
	applicants map[domain.ApplicationID]domain.PlayerID
}

func NewProjector() *Projector {
	return &Projector{applicants: make(map[domain.ApplicationID]domain.PlayerID)}
}

// Project maps one record. Records must be fed in global order.
func (p *Projector) Project(rec eventstore.Record) (Entry, error) {
	entry := Entry{
		Seq:       rec.GlobalSeq,
		Stream:    rec.StreamID.String(),
		Version:   rec.Version,
		Type:      rec.Type,
		Subject:   rec.StreamID.AggregateID(),
		Timestamp: rec.Timestamp,
	}

	switch rec.StreamID.Kind() {
	case eventstore.KindMembership:
		evt, err := membership.Codec{}.Decode(rec)
		if err != nil {
			return Entry{}, fmt.Errorf("project seq %d: %w", rec.GlobalSeq, err)
		}
		entry.Player = evt.MembershipID().PlayerID()
		switch e := evt.(type) {
		case membership.Created:
			entry.Actor, entry.Reason, entry.Status = e.Actor, e.Reason, string(e.InitialStatus)
		case membership.StatusChanged:
			entry.Actor, entry.Reason, entry.Status = e.Actor, e.Reason, string(e.NewStatus)
		default:
			return Entry{}, fmt.Errorf("project seq %d: %w", rec.GlobalSeq, membership.ErrUnknownEvent)
		}

	case eventstore.KindApplication:
		evt, err := application.Codec{}.Decode(rec)
		if err != nil {
			return Entry{}, fmt.Errorf("project seq %d: %w", rec.GlobalSeq, err)
		}
		switch e := evt.(type) {
		case application.Submitted:
			p.applicants[e.Application] = e.Player
			entry.Actor, entry.Status = e.Player, string(application.StatusPending)
		case application.Approved:
			entry.Actor, entry.Reason, entry.Status = e.Actor, e.Notes, string(application.StatusApproved)
		case application.Rejected:
			entry.Actor, entry.Reason, entry.Status = e.Actor, e.Reason, string(application.StatusRejected)
		case application.Reopened:
			entry.Actor, entry.Reason, entry.Status = e.Actor, e.Reason, string(application.StatusPending)
		default:
			return Entry{}, fmt.Errorf("project seq %d: %w", rec.GlobalSeq, application.ErrUnknownEvent)
		}
		entry.Player = p.applicants[evt.ApplicationID()]

	default:
		return Entry{}, fmt.Errorf("project seq %d: %w %q", rec.GlobalSeq, ErrUnknownStream, rec.StreamID.Kind())
	}
	return entry, nil
}
