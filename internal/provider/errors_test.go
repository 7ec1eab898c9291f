package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_MatchesOneSentinel(t *testing.T) {
	tests := []struct {
		category    ErrorCategory
		timeout     bool
		unavailable bool
		retryable   bool
	}{
		{ErrorTimeout, true, false, true},
		{ErrorProviderOutage, false, true, true},
		{ErrorRateLimited, false, true, true},
		{ErrorAuthentication, false, true, false},
		{ErrorBadData, false, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := fmt.Errorf("reconcile: %w", NewProviderError(tt.category, "discord", "boom", context.DeadlineExceeded))
			assert.Equal(t, tt.timeout, errors.Is(err, ErrProviderTimeout))
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrProviderUnavailable))
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.category, GetCategory(err))
		})
	}
}

func TestGetCategory_PlainError(t *testing.T) {
	assert.Equal(t, ErrorInternal, GetCategory(errors.New("x")))
	assert.False(t, IsRetryable(errors.New("x")))
}

func TestRoleState_Entitled(t *testing.T) {
	assert.True(t, RoleState{InGuild: true, HasAccessRole: true}.Entitled())
	assert.False(t, RoleState{InGuild: true}.Entitled())
	assert.False(t, RoleState{HasAccessRole: true}.Entitled())
}
