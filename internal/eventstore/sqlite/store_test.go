package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"argus/internal/eventstore"
	"argus/internal/eventstore/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{
		NewStore: func(t *testing.T) eventstore.Store { return openTemp(t) },
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Append(ctx, "membership-1", eventstore.NoStream, eventstore.Event{Type: "created"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Version(ctx, "membership-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	_, err = reopened.Append(ctx, "membership-1", eventstore.NoStream, eventstore.Event{Type: "created"})
	require.ErrorIs(t, err, eventstore.ErrAggregateAlreadyExists)
}

func TestSQLiteStore_RejectsRewrites(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)
	_, err := store.Append(ctx, "membership-1", eventstore.NoStream, eventstore.Event{Type: "created"})
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `UPDATE events SET event_type = 'forged'`)
	require.Error(t, err)
	_, err = store.db.ExecContext(ctx, `DELETE FROM events`)
	require.Error(t, err)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
