package reconcile

import (
	"context"

	"argus/internal/eventstore"
	"argus/internal/membership"
	"argus/internal/provider"
	"argus/internal/snapshot"
	"argus/pkg/domain"
)

// RoleSource reads a player's current role state from the provider.
type RoleSource interface {
	CurrentRoleState(ctx context.Context, player domain.PlayerID) (provider.RoleState, error)
}

// RoleAssigner grants and revokes the provider access role.
type RoleAssigner interface {
	GrantRole(ctx context.Context, player domain.PlayerID) error
	RevokeRole(ctx context.Context, player domain.PlayerID) error
}

// StatusCache is the status snapshot the service compares against and
// refreshes after a correction.
type StatusCache interface {
	Current() *snapshot.State
	CatchUp(ctx context.Context) (*snapshot.State, error)
}

// MembershipCommands runs a membership command with conflict retry.
type MembershipCommands interface {
	Execute(ctx context.Context, stream eventstore.StreamID, decide func(membership.State) ([]membership.Event, error)) (membership.State, int64, error)
}
