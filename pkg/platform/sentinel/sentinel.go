package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and provider clients
// return these (optionally wrapped) so services can translate them into domain
// errors with pkg/domain-errors.
//
// These describe the state of a resource, not bad input:
// - ErrNotFound: the record, stream or token does not exist
// - ErrConflict: a write lost a race against another writer
// - ErrExpired: a link token or cached entry outlived its TTL
// - ErrAlreadyUsed: a one-time token was already redeemed
// - ErrUnavailable: a downstream service cannot be reached right now
// - ErrTimeout: a downstream call exceeded its deadline
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
	ErrTimeout     = errors.New("timeout")
)
