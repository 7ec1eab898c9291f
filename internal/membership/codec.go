package membership

import (
	"encoding/json"
	"fmt"

	"argus/internal/eventstore"
	"argus/pkg/domain"
)

type createdPayload struct {
	Membership    string `json:"membership_id"`
	InitialStatus Status `json:"initial_status"`
	Reason        string `json:"reason,omitempty"`
	Actor         string `json:"actor,omitempty"`
}

type statusChangedPayload struct {
	Membership string `json:"membership_id"`
	NewStatus  Status `json:"new_status"`
	OldStatus  Status `json:"old_status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Actor      string `json:"actor,omitempty"`
}

// Codec is the eventstore mapping for membership events.
type Codec struct{}

func (Codec) Encode(e Event) (eventstore.Event, error) {
	var payload any
	switch evt := e.(type) {
	case Created:
		payload = createdPayload{
			Membership:    evt.Membership.String(),
			InitialStatus: evt.InitialStatus,
			Reason:        evt.Reason,
			Actor:         evt.Actor.String(),
		}
	case StatusChanged:
		payload = statusChangedPayload{
			Membership: evt.Membership.String(),
			NewStatus:  evt.NewStatus,
			OldStatus:  evt.OldStatus,
			Reason:     evt.Reason,
			Actor:      evt.Actor.String(),
		}
	default:
		return eventstore.Event{}, fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("marshal %s: %w", e.EventType(), err)
	}
	return eventstore.Event{Type: e.EventType(), Timestamp: e.OccurredAt(), Payload: raw}, nil
}

func (Codec) Decode(r eventstore.Record) (Event, error) {
	switch r.Type {
	case EventTypeCreated:
		var p createdPayload
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", r.Type, err)
		}
		return Created{
			Membership:    membershipID(p.Membership, r),
			InitialStatus: p.InitialStatus,
			Reason:        p.Reason,
			Actor:         domain.PlayerID(p.Actor),
			At:            r.Timestamp,
		}, nil
	case EventTypeStatusChanged:
		var p statusChangedPayload
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", r.Type, err)
		}
		return StatusChanged{
			Membership: membershipID(p.Membership, r),
			NewStatus:  p.NewStatus,
			OldStatus:  p.OldStatus,
			Reason:     p.Reason,
			Actor:      domain.PlayerID(p.Actor),
			At:         r.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, r.Type)
	}
}

// membershipID prefers the payload id and falls back to the stream name.
func membershipID(payload string, r eventstore.Record) domain.MembershipID {
	if payload == "" {
		payload = r.StreamID.AggregateID()
	}
	return domain.MembershipIDFor(domain.PlayerID(payload))
}
