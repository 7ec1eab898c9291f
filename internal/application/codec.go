package application

import (
	"encoding/json"
	"fmt"

	"argus/internal/eventstore"
	"argus/pkg/domain"
)

type submittedPayload struct {
	Application  string `json:"application_id"`
	Player       string `json:"player_id"`
	GameAccount  string `json:"game_account_id"`
	GameUsername string `json:"game_username"`
	Details      string `json:"details,omitempty"`
}

type decisionPayload struct {
	Application string `json:"application_id"`
	Actor       string `json:"actor,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Codec is the eventstore mapping for application events.
type Codec struct{}

func (Codec) Encode(e Event) (eventstore.Event, error) {
	var payload any
	switch evt := e.(type) {
	case Submitted:
		payload = submittedPayload{
			Application:  evt.Application.String(),
			Player:       evt.Player.String(),
			GameAccount:  evt.GameAccount.String(),
			GameUsername: evt.GameUsername,
			Details:      evt.Details,
		}
	case Approved:
		payload = decisionPayload{Application: evt.Application.String(), Actor: evt.Actor.String(), Notes: evt.Notes}
	case Rejected:
		payload = decisionPayload{Application: evt.Application.String(), Actor: evt.Actor.String(), Reason: evt.Reason, Notes: evt.Notes}
	case Reopened:
		payload = decisionPayload{Application: evt.Application.String(), Actor: evt.Actor.String(), Reason: evt.Reason}
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
	case EventTypeSubmitted:
		var p submittedPayload
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", r.Type, err)
		}
		id, err := applicationID(p.Application, r)
		if err != nil {
			return nil, err
		}
		return Submitted{
			Application:  id,
			Player:       domain.PlayerID(p.Player),
			GameAccount:  domain.GameAccountID(p.GameAccount),
			GameUsername: p.GameUsername,
			Details:      p.Details,
			At:           r.Timestamp,
		}, nil
	case EventTypeApproved, EventTypeRejected, EventTypeReopened:
		var p decisionPayload
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", r.Type, err)
		}
		id, err := applicationID(p.Application, r)
		if err != nil {
			return nil, err
		}
		actor := domain.PlayerID(p.Actor)
		switch r.Type {
		case EventTypeApproved:
			return Approved{Application: id, Actor: actor, Notes: p.Notes, At: r.Timestamp}, nil
		case EventTypeRejected:
			return Rejected{Application: id, Actor: actor, Reason: p.Reason, Notes: p.Notes, At: r.Timestamp}, nil
		default:
			return Reopened{Application: id, Actor: actor, Reason: p.Reason, At: r.Timestamp}, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, r.Type)
	}
}

func applicationID(payload string, r eventstore.Record) (domain.ApplicationID, error) {
	if payload == "" {
		payload = r.StreamID.AggregateID()
	}
	id, err := domain.ParseApplicationID(payload)
	if err != nil {
		return domain.ApplicationID{}, fmt.Errorf("%s v%d: %w", r.StreamID, r.Version, err)
	}
	return id, nil
}
