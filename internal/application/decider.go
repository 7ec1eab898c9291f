package application

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"argus/internal/membership"
	"argus/pkg/domain"
	dErrors "argus/pkg/domain-errors"
)

const (
	maxUsernameLength = 16
	maxDetailsLength  = 2000

	ReasonApproved = "application approved"
	ReasonReopened = "application reopened"
)

// Effect is a membership change the caller must issue after the application
// event is stored. Applications never touch memberships directly.
type Effect struct {
	Player domain.PlayerID
	Status membership.Status
	// From is the membership status the decision expects to move away from.
	From   membership.Status
	Reason string
	Actor  domain.PlayerID
}

// Settled returns the membership effect a decided application implies. It is
// used to re-issue an effect whose append was lost after the decision landed.
// A freshly submitted application implies nothing.
func Settled(s State) (Effect, bool) {
	switch {
	case s.Status == StatusApproved:
		return Effect{Player: s.Player, Status: membership.StatusWhitelisted, From: membership.StatusPending, Reason: ReasonApproved, Actor: s.LastActor}, true
	case s.Status == StatusRejected:
		return Effect{Player: s.Player, Status: membership.StatusRejected, From: membership.StatusPending, Reason: s.LastReason, Actor: s.LastActor}, true
	case s.Status == StatusPending && s.Reopens > 0:
		return Effect{Player: s.Player, Status: membership.StatusPending, From: membership.StatusRejected, Reason: s.LastReason, Actor: s.LastActor}, true
	}
	return Effect{}, false
}

// Submit opens a new application. Only valid on an empty stream; the one open
// application per player rule is enforced by the caller.
func Submit(s State, id domain.ApplicationID, player domain.PlayerID, account domain.GameAccountID, username, details string, now time.Time) (Submitted, error) {
	if s.Exists() {
		return Submitted{}, dErrors.New(dErrors.CodeAggregateAlreadyExists,
			fmt.Sprintf("application %s already exists", s.ID))
	}
	if id.IsNil() {
		return Submitted{}, dErrors.New(dErrors.CodeInvalidInput, "application id is required")
	}
	if player.IsNil() {
		return Submitted{}, dErrors.New(dErrors.CodeInvalidInput, "player id is required")
	}
	if account == "" {
		return Submitted{}, dErrors.New(dErrors.CodeInvalidInput, "game account id is required")
	}
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return Submitted{}, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("game username must be 1-%d characters", maxUsernameLength))
	}
	if utf8.RuneCountInString(details) > maxDetailsLength {
		return Submitted{}, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("details must be at most %d characters", maxDetailsLength))
	}
	return Submitted{
		Application:  id,
		Player:       player,
		GameAccount:  account,
		GameUsername: username,
		Details:      details,
		At:           now.UTC(),
	}, nil
}

func Approve(s State, actor domain.PlayerID, notes string, now time.Time) (Approved, Effect, error) {
	if err := requireStatus(s, StatusPending, "approve"); err != nil {
		return Approved{}, Effect{}, err
	}
	return Approved{Application: s.ID, Actor: actor, Notes: notes, At: now.UTC()},
		Effect{Player: s.Player, Status: membership.StatusWhitelisted, From: membership.StatusPending, Reason: ReasonApproved, Actor: actor},
		nil
}

func Reject(s State, actor domain.PlayerID, reason, notes string, now time.Time) (Rejected, Effect, error) {
	if err := requireStatus(s, StatusPending, "reject"); err != nil {
		return Rejected{}, Effect{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return Rejected{}, Effect{}, dErrors.New(dErrors.CodeInvalidInput, "rejection reason is required")
	}
	return Rejected{Application: s.ID, Actor: actor, Reason: reason, Notes: notes, At: now.UTC()},
		Effect{Player: s.Player, Status: membership.StatusRejected, From: membership.StatusPending, Reason: reason, Actor: actor},
		nil
}

func Reopen(s State, actor domain.PlayerID, reason string, now time.Time) (Reopened, Effect, error) {
	if err := requireStatus(s, StatusRejected, "reopen"); err != nil {
		return Reopened{}, Effect{}, err
	}
	if reason == "" {
		reason = ReasonReopened
	}
	return Reopened{Application: s.ID, Actor: actor, Reason: reason, At: now.UTC()},
		Effect{Player: s.Player, Status: membership.StatusPending, From: membership.StatusRejected, Reason: reason, Actor: actor},
		nil
}

func requireStatus(s State, want Status, op string) error {
	if !s.Exists() {
		return dErrors.New(dErrors.CodeAggregateNotFound, "application does not exist")
	}
	if s.Status != want {
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot %s application %s in status %s", op, s.ID, s.Status))
	}
	return nil
}
