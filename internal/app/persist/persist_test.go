package persist_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridroom/internal/app/persist"
	"gridroom/internal/app/topology"
	"gridroom/internal/app/user"
	"gridroom/internal/configs"
)

func sampleState() persist.State {
	disconnected := time.Unix(1_700_000_100, 0).UTC()

	alice := user.New("alicealice01", "3f0c5a2e-8c1d-4d7a-9a55-0f3e1c2b4d6e", "alice◆AbCdEfGhIj", "giko")
	alice.Area, alice.Room = "gen", "bar"
	alice.Position = topology.Point{X: 3, Y: 4}
	alice.Direction = topology.Left
	alice.CharacterVariant = "alt"
	alice.IP = "10.0.0.1"
	alice.BlockedIPs = []string{"10.0.0.9"}
	alice.LastAction = time.Unix(1_700_000_000, 0).UTC()

	bob := user.New("bobbobbob001", "a5d2f6c1-1e0b-4c93-8e7e-2d1f0a9b8c7d", "bob", "shii")
	bob.Area, bob.Room = "gen", "school"
	bob.IP = "10.0.0.2"
	bob.Ghost = true
	bob.DisconnectedAt = &disconnected
	bob.Inactive = true
	bob.LastAction = time.Unix(1_699_999_000, 0).UTC()

	return persist.State{
		Users:     []user.User{*alice, *bob},
		BannedIPs: []string{"192.0.2.1"},
	}
}

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := persist.NewMemory()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, persist.ErrNoState)

	want := sampleState()
	require.NoError(t, store.Save(ctx, want))

	// Later mutations of the saved value must not leak into the store.
	want.Users[0].BlockedIPs[0] = "changed"

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

func TestOpen_SelectsBackend(t *testing.T) {
	store, err := persist.Open(context.Background(), &configs.AppConfig{PersistenceBackend: configs.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &persist.Memory{}, store)

	_, err = persist.Open(context.Background(), &configs.AppConfig{PersistenceBackend: "floppy"})
	assert.Error(t, err)

	_, err = persist.Open(context.Background(), &configs.AppConfig{PersistenceBackend: configs.BackendS3})
	assert.Error(t, err, "a bucket is required")
}
