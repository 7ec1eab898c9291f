package eventstore_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/internal/eventstore"
	"argus/internal/eventstore/memory"
	"argus/internal/eventstore/metrics"
)

func TestInstrumentedCountsAppendResults(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	store := eventstore.Instrument(memory.New(), m)
	stream := eventstore.StreamID("membership-42")
	evt := eventstore.Event{Type: "StatusChanged"}

	_, err := store.Append(ctx, stream, eventstore.NoStream, evt, evt)
	require.NoError(t, err)
	_, err = store.Append(ctx, stream, 1, evt)
	require.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	_, err = store.Append(ctx, stream, eventstore.NoStream, evt)
	require.ErrorIs(t, err, eventstore.ErrAggregateAlreadyExists)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Appends.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Appends.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Appends.WithLabelValues("exists")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsAppended))

	records, err := store.ReadAll(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestInstrumentedToleratesNilMetrics(t *testing.T) {
	store := eventstore.Instrument(memory.New(), nil)
	_, err := store.Append(context.Background(), "membership-1", eventstore.NoStream, eventstore.Event{Type: "x"})
	assert.NoError(t, err)
}
