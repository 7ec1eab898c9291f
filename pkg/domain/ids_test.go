package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "argus/pkg/domain-errors"
)

// TestParsePlayerID_Invariants validates that player ids are non-empty
// numeric provider keys.
func TestParsePlayerID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePlayerID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non numeric", func(t *testing.T) {
		_, err := ParsePlayerID("player-1")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects oversized input", func(t *testing.T) {
		_, err := ParsePlayerID(strings.Repeat("1", 64))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts snowflake and trims whitespace", func(t *testing.T) {
		id, err := ParsePlayerID(" 80351110224678912 ")
		require.NoError(t, err)
		assert.Equal(t, PlayerID("80351110224678912"), id)
	})
}

func TestMembershipIDFor(t *testing.T) {
	player := PlayerID("80351110224678912")
	membership := MembershipIDFor(player)

	assert.Equal(t, player, membership.PlayerID())
	assert.Equal(t, player.String(), membership.String())
}

func TestParseApplicationID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Empty string", "", true},
		{"Whitespace only", "   ", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseApplicationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}

	t.Run("generated ids round-trip", func(t *testing.T) {
		id := NewApplicationID()
		parsed, err := ParseApplicationID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
		assert.False(t, parsed.IsNil())
	})
}

func TestParseGameAccountID_Canonicalizes(t *testing.T) {
	id, err := ParseGameAccountID("069A79F4-44E9-4726-A5BE-FCA90E38AAF5")
	require.NoError(t, err)
	assert.Equal(t, GameAccountID("069a79f4-44e9-4726-a5be-fca90e38aaf5"), id)

	_, err = ParseGameAccountID(uuid.Nil.String())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestApplicationID_TextRoundTrip(t *testing.T) {
	id := NewApplicationID()
	b, err := id.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, id.String(), string(b))

	var back ApplicationID
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, id, back)

	assert.Error(t, back.UnmarshalText([]byte("nope")))
}
