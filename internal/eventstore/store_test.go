package eventstore

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/pkg/domain"
)

func TestStreamID(t *testing.T) {
	player, err := domain.ParsePlayerID("123456789012345678")
	require.NoError(t, err)

	s := MembershipStream(domain.MembershipIDFor(player))
	assert.Equal(t, StreamID("membership-123456789012345678"), s)
	assert.Equal(t, KindMembership, s.Kind())
	assert.Equal(t, "123456789012345678", s.AggregateID())
	assert.NoError(t, s.Validate())

	appID := domain.NewApplicationID()
	a := ApplicationStream(appID)
	assert.Equal(t, KindApplication, a.Kind())
	assert.Equal(t, appID.String(), a.AggregateID())

	assert.ErrorIs(t, StreamID("nodash").Validate(), ErrInvalidStream)
	assert.ErrorIs(t, StreamID("-x").Validate(), ErrInvalidStream)
}

func TestCheckExpected(t *testing.T) {
	tests := []struct {
		name     string
		expected int64
		actual   int64
		wantErr  error
	}{
		{"no stream on empty", NoStream, 0, nil},
		{"no stream on existing", NoStream, 2, ErrAggregateAlreadyExists},
		{"zero on empty", 0, 0, nil},
		{"match", 3, 3, nil},
		{"stale", 2, 3, ErrConcurrencyConflict},
		{"ahead", 4, 3, ErrConcurrencyConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExpected("membership-1", tt.expected, tt.actual)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestPrepare(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("rejects empty append", func(t *testing.T) {
		_, err := Prepare("membership-1", nil, now)
		assert.ErrorIs(t, err, ErrEmptyAppend)
	})

	t.Run("rejects missing type", func(t *testing.T) {
		_, err := Prepare("membership-1", []Event{{}}, now)
		assert.Error(t, err)
	})

	t.Run("fills defaults without touching input", func(t *testing.T) {
		in := []Event{{Type: "x"}}
		out, err := Prepare("membership-1", in, now)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, out[0].ID)
		assert.Equal(t, now, out[0].Timestamp)
		assert.JSONEq(t, "{}", string(out[0].Payload))
		assert.Equal(t, uuid.Nil, in[0].ID)
	})
}
