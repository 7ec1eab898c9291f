package httptransport

import (
	"time"

	"argus/internal/application"
	"argus/internal/audit"
	"argus/internal/gate"
	"argus/internal/membership"
)

type applicationResponse struct {
	ID           string     `json:"id"`
	Player       string     `json:"player"`
	GameAccount  string     `json:"game_account"`
	GameUsername string     `json:"game_username"`
	Details      string     `json:"details,omitempty"`
	Status       string     `json:"status"`
	LastActor    string     `json:"last_actor,omitempty"`
	LastReason   string     `json:"last_reason,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	Reopens      int        `json:"reopens"`
}

func fromApplication(s application.State) applicationResponse {
	resp := applicationResponse{
		ID:           s.ID.String(),
		Player:       s.Player.String(),
		GameAccount:  s.GameAccount.String(),
		GameUsername: s.GameUsername,
		Details:      s.Details,
		Status:       string(s.Status),
		LastActor:    s.LastActor.String(),
		LastReason:   s.LastReason,
		Notes:        s.Notes,
		SubmittedAt:  s.SubmittedAt,
		Reopens:      s.Reopens,
	}
	if !s.DecidedAt.IsZero() {
		decided := s.DecidedAt
		resp.DecidedAt = &decided
	}
	return resp
}

type memberResponse struct {
	Player    string    `json:"player"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Actor     string    `json:"actor"`
	UpdatedAt time.Time `json:"updated_at"`
}

func fromMember(s membership.State) memberResponse {
	actor := s.Actor.String()
	if actor == "" {
		actor = "system"
	}
	return memberResponse{
		Player:    s.ID.String(),
		Status:    s.Status.String(),
		Reason:    s.Reason,
		Actor:     actor,
		UpdatedAt: s.UpdatedAt,
	}
}

type decisionResponse struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

func fromDecision(d gate.Decision) decisionResponse {
	return decisionResponse{
		Kind:    string(d.Kind),
		Reason:  string(d.Reason),
		Message: d.Message,
		Token:   d.Token,
	}
}

type reconcileResponse struct {
	Player  string `json:"player"`
	Outcome string `json:"outcome"`
}

type auditResponse struct {
	Entries []audit.Entry `json:"entries"`
	// Next is the cursor for the following page.
	Next int64 `json:"next"`
}
