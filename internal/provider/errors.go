package provider

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for identity providers.
type ErrorCategory string

const (
	// ErrorTimeout indicates the provider took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorProviderOutage indicates the provider is unreachable or erroring
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorRateLimited indicates the provider asked us to back off
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorAuthentication indicates the bot token or its permissions are wrong
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorBadData indicates the provider returned something we cannot use
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// Sentinels callers branch on. Every ProviderError matches exactly one of them
// through errors.Is.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
)

// ProviderError wraps provider failures with normalized categorization.
type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// Is maps categories onto the two sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrProviderTimeout:
		return e.Category == ErrorTimeout
	case ErrProviderUnavailable:
		return e.Category != ErrorTimeout
	}
	return false
}

func NewProviderError(category ErrorCategory, providerID, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited

	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying on a later pass.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}
