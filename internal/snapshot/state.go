// Package snapshot materializes the event log into the immutable read model the
// permission gate consults, and persists it between restarts.
package snapshot

import (
	"maps"
	"slices"

	"argus/internal/application"
	"argus/internal/membership"
	"argus/pkg/domain"
)

// State is an immutable view of the log up to Seq. Never mutate a State that
// has been published; the projector clones before applying.
type State struct {
	Seq              int64                                      `json:"seq"`
	Members          map[domain.PlayerID]membership.State       `json:"members"`
	Applications     map[domain.ApplicationID]application.State `json:"applications"`
	Accounts         map[domain.GameAccountID]domain.PlayerID   `json:"accounts"`
	OpenApplications map[domain.PlayerID]domain.ApplicationID   `json:"open_applications"`
}

func Empty() *State {
	return &State{
		Members:          map[domain.PlayerID]membership.State{},
		Applications:     map[domain.ApplicationID]application.State{},
		Accounts:         map[domain.GameAccountID]domain.PlayerID{},
		OpenApplications: map[domain.PlayerID]domain.ApplicationID{},
	}
}

func (s *State) clone() *State {
	return &State{
		Seq:              s.Seq,
		Members:          maps.Clone(s.Members),
		Applications:     maps.Clone(s.Applications),
		Accounts:         maps.Clone(s.Accounts),
		OpenApplications: maps.Clone(s.OpenApplications),
	}
}

// normalize replaces nil maps left by decoding an older or sparse file.
func (s *State) normalize() {
	if s.Members == nil {
		s.Members = map[domain.PlayerID]membership.State{}
	}
	if s.Applications == nil {
		s.Applications = map[domain.ApplicationID]application.State{}
	}
	if s.Accounts == nil {
		s.Accounts = map[domain.GameAccountID]domain.PlayerID{}
	}
	if s.OpenApplications == nil {
		s.OpenApplications = map[domain.PlayerID]domain.ApplicationID{}
	}
}

// Status returns the player's membership status, if the player has one.
func (s *State) Status(player domain.PlayerID) (membership.Status, bool) {
	if s == nil {
		return "", false
	}
	m, ok := s.Members[player]
	return m.Status, ok
}

func (s *State) Member(player domain.PlayerID) (membership.State, bool) {
	if s == nil {
		return membership.State{}, false
	}
	m, ok := s.Members[player]
	return m, ok
}

func (s *State) Application(id domain.ApplicationID) (application.State, bool) {
	if s == nil {
		return application.State{}, false
	}
	a, ok := s.Applications[id]
	return a, ok
}

// OpenApplication returns the player's pending application, if any.
func (s *State) OpenApplication(player domain.PlayerID) (domain.ApplicationID, bool) {
	if s == nil {
		return domain.ApplicationID{}, false
	}
	id, ok := s.OpenApplications[player]
	return id, ok
}

// PlayerForAccount maps a game account to the player that holds it.
func (s *State) PlayerForAccount(account domain.GameAccountID) (domain.PlayerID, bool) {
	if s == nil {
		return "", false
	}
	p, ok := s.Accounts[account]
	return p, ok
}

// PlayersWithStatus returns players in any of statuses, sorted.
func (s *State) PlayersWithStatus(statuses ...membership.Status) []domain.PlayerID {
	if s == nil {
		return nil
	}
	var out []domain.PlayerID
	for player, m := range s.Members {
		if slices.Contains(statuses, m.Status) {
			out = append(out, player)
		}
	}
	slices.Sort(out)
	return out
}

// approvedFor reports whether player holds account through an approved
// application.
func (s *State) approvedFor(player domain.PlayerID, account domain.GameAccountID) bool {
	for _, app := range s.Applications {
		if app.Player == player && app.GameAccount == account && app.Status == application.StatusApproved {
			return true
		}
	}
	return false
}

// OwedEffect returns the membership change a stored application decision
// implies but the player's membership never received. Only the player's most
// recent decision counts, and only when it is newer than the membership's last
// change.
func (s *State) OwedEffect(player domain.PlayerID) (application.Effect, bool) {
	if s == nil {
		return application.Effect{}, false
	}
	member, ok := s.Members[player]
	if !ok {
		return application.Effect{}, false
	}
	switch member.Status {
	case membership.StatusRejected:
		// Submitting moves the membership to PENDING first, so an open
		// application under a REJECTED membership is a lost reopen.
		id, open := s.OpenApplications[player]
		if !open {
			return application.Effect{}, false
		}
		effect, ok := application.Settled(s.Applications[id])
		return effect, ok && effect.From == member.Status
	case membership.StatusPending:
		if _, open := s.OpenApplications[player]; open {
			return application.Effect{}, false
		}
		var latest application.State
		for _, app := range s.Applications {
			if app.Player == player && app.DecidedAt.After(latest.DecidedAt) {
				latest = app
			}
		}
		if latest.DecidedAt.Before(member.UpdatedAt) {
			return application.Effect{}, false
		}
		effect, ok := application.Settled(latest)
		return effect, ok && effect.From == member.Status
	}
	return application.Effect{}, false
}

// PlayersOwingEffects returns players for whom OwedEffect reports a change,
// sorted.
func (s *State) PlayersOwingEffects() []domain.PlayerID {
	if s == nil {
		return nil
	}
	var out []domain.PlayerID
	for player := range s.Members {
		if _, ok := s.OwedEffect(player); ok {
			out = append(out, player)
		}
	}
	slices.Sort(out)
	return out
}
