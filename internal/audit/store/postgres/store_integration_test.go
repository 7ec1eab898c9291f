//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"argus/internal/audit"
	"argus/internal/audit/store/postgres"
	"argus/pkg/testutil/containers"
)

func TestPostgresAuditStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	store := postgres.New(pg.DB)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, pg.TruncateTables(ctx, "audit_entries"))

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []audit.Entry{
		{Seq: 1, Stream: "application-x", Version: 1, Type: "application.submitted", Subject: "x", Player: "1", Actor: "1", Status: "PENDING", Timestamp: at},
		{Seq: 2, Stream: "membership-1", Version: 1, Type: "membership.created", Subject: "1", Player: "1", Status: "PENDING", Timestamp: at},
		{Seq: 3, Stream: "membership-2", Version: 1, Type: "membership.created", Subject: "2", Player: "2", Status: "PENDING", Timestamp: at},
	}
	require.NoError(t, store.Append(ctx, entries...))
	require.NoError(t, store.Append(ctx, entries[2]), "replayed entries are ignored")

	last, err := store.LastSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), last)

	byPlayer, err := store.List(ctx, audit.Filter{Subject: "1"})
	require.NoError(t, err)
	require.Equal(t, entries[:2], byPlayer)

	page, err := store.List(ctx, audit.Filter{AfterSeq: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, int64(2), page[0].Seq)
}
