package user

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockedWith_IsSymmetric(t *testing.T) {
	a := New("a", "pa", "alice", "giko")
	a.IP = "10.0.0.1"
	b := New("b", "pb", "bob", "giko")
	b.IP = "10.0.0.2"
	c := New("c", "pc", "carol", "giko")
	c.IP = "10.0.0.3"

	a.Block(b.IP)
	a.Block(b.IP)
	a.Block(a.IP)

	assert.Equal(t, []string{"10.0.0.2"}, a.BlockedIPs)
	assert.True(t, a.BlockedWith(b))
	assert.True(t, b.BlockedWith(a))
	assert.False(t, a.BlockedWith(c))
	assert.False(t, a.BlockedWith(a))
}

func TestAllowMessage(t *testing.T) {
	u := New("a", "pa", "alice", "giko")
	start := time.Unix(1000, 0)

	for i := range 3 {
		assert.True(t, u.AllowMessage(start.Add(time.Duration(i)*time.Second), 3, 5*time.Second))
	}
	assert.False(t, u.AllowMessage(start.Add(3*time.Second), 3, 5*time.Second))
	assert.True(t, u.AllowMessage(start.Add(5*time.Second), 3, 5*time.Second))

	assert.True(t, u.AllowMessage(start, 0, time.Hour))
}

func TestClone_IsDeepAndRoundTrips(t *testing.T) {
	u := New("a", "pa", "alice", "giko")
	u.Block("10.0.0.9")
	at := time.Unix(50, 0).UTC()
	disconnected := at
	u.DisconnectedAt = &disconnected
	u.Ghost = true

	c := u.Clone()
	u.BlockedIPs[0] = "changed"
	*u.DisconnectedAt = time.Unix(0, 0)

	assert.Equal(t, []string{"10.0.0.9"}, c.BlockedIPs)
	assert.Equal(t, at, *c.DisconnectedAt)

	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var back User
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, c.PublicID, back.PublicID)
	assert.Equal(t, c.PrivateID, back.PrivateID)
	assert.Equal(t, c.BlockedIPs, back.BlockedIPs)
	assert.True(t, back.Ghost)
	assert.False(t, back.Connected())
}
