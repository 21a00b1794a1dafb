package randx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 200 {
		id, err := PublicID()
		require.NoError(t, err)
		assert.True(t, IsValidPublicID(id), id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestIsValidPublicID(t *testing.T) {
	assert.False(t, IsValidPublicID("short"))
	assert.False(t, IsValidPublicID("abcdefghijk-"))
	assert.True(t, IsValidPublicID("abcdefghijk0"))
}

func TestPrivateID(t *testing.T) {
	id := PrivateID()
	assert.True(t, IsValidPrivateID(id))
	assert.False(t, IsValidPrivateID("not-a-uuid"))
	assert.NotEqual(t, id, PrivateID())
}
