//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"argus/internal/eventstore"
	"argus/internal/eventstore/postgres"
	"argus/internal/eventstore/storetest"
	txcontext "argus/pkg/platform/tx"
	"argus/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, postgres.New(pg.DB).Migrate(context.Background()))

	suite.Run(t, &storetest.Suite{
		NewStore: func(t *testing.T) eventstore.Store {
			require.NoError(t, pg.TruncateTables(context.Background(), "events"))
			return postgres.New(pg.DB)
		},
	})
}

func TestPostgresStore_JoinsCallerTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	store := postgres.New(pg.DB)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, pg.TruncateTables(ctx, "events"))

	tx, err := pg.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = store.Append(txcontext.WithTx(ctx, tx), "membership-9", eventstore.NoStream, eventstore.Event{Type: "created"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	v, err := store.Version(ctx, "membership-9")
	require.NoError(t, err)
	require.Zero(t, v, "rolled back with the caller's transaction")
}
