// Package provider describes the external identity provider whose role
// membership decides who may be whitelisted.
package provider

// RoleState is what the provider currently says about a player.
type RoleState struct {
	InGuild       bool
	HasAccessRole bool
}

// Entitled reports whether the provider grants access.
func (r RoleState) Entitled() bool {
	return r.InGuild && r.HasAccessRole
}
