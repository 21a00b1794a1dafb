package persist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"gridroom/internal/app/persist"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gridroom"),
		postgres.WithUsername("gridroom"),
		postgres.WithPassword("gridroom"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgres_RoundTrip(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := persist.NewPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	t.Run("Empty", func(t *testing.T) {
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, persist.ErrNoState)
	})

	t.Run("SaveLoad", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sampleState()))

		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, sampleState(), got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		next := sampleState()
		next.Users = next.Users[:1]
		next.BannedIPs = []string{}
		require.NoError(t, store.Save(ctx, next))

		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, got.Users, 1)
		assert.Empty(t, got.BannedIPs)
	})

	t.Run("MigrationsAreIdempotent", func(t *testing.T) {
		again, err := persist.NewPostgres(ctx, dsn)
		require.NoError(t, err)
		again.Close()
	})
}
