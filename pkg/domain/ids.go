package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "argus/pkg/domain-errors"
)

// PlayerID is the identity provider's account key (a Discord snowflake). It is
// stable and never reused, so it doubles as the membership key.
type PlayerID string

// ApplicationID identifies one whitelist application instance.
type ApplicationID uuid.UUID

// MembershipID is the PlayerID of the member it represents. Deriving it from
// the player keeps exactly one membership stream per player.
type MembershipID PlayerID

// GameAccountID is the game account UUID a player applies with.
type GameAccountID string

const maxPlayerIDLen = 20

// ParsePlayerID validates a provider account key.
func ParsePlayerID(s string) (PlayerID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "player id is required")
	}
	if len(s) > maxPlayerIDLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "player id is too long")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "player id must be numeric")
		}
	}
	return PlayerID(s), nil
}

func (id PlayerID) String() string { return string(id) }

func (id PlayerID) IsNil() bool { return id == "" }

// MembershipIDFor is the only way to build a MembershipID.
func MembershipIDFor(player PlayerID) MembershipID {
	return MembershipID(player)
}

func (id MembershipID) PlayerID() PlayerID { return PlayerID(id) }

func (id MembershipID) String() string { return string(id) }

// NewApplicationID returns a fresh random id.
func NewApplicationID() ApplicationID {
	return ApplicationID(uuid.New())
}

// ParseApplicationID rejects empty, malformed and nil UUIDs.
func ParseApplicationID(s string) (ApplicationID, error) {
	if strings.TrimSpace(s) == "" {
		return ApplicationID{}, dErrors.New(dErrors.CodeInvalidInput, "application id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ApplicationID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid application id")
	}
	if u == uuid.Nil {
		return ApplicationID{}, dErrors.New(dErrors.CodeInvalidInput, "application id must not be nil")
	}
	return ApplicationID(u), nil
}

func (id ApplicationID) String() string { return uuid.UUID(id).String() }

func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id ApplicationID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *ApplicationID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = ApplicationID(u)
	return nil
}

// ParseGameAccountID normalizes a game account UUID to its canonical form.
func ParseGameAccountID(s string) (GameAccountID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid game account id")
	}
	if u == uuid.Nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "game account id must not be nil")
	}
	return GameAccountID(u.String()), nil
}

func (id GameAccountID) String() string { return string(id) }
