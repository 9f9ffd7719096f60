package fieldcrypt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchHash_Stable(t *testing.T) {
	h, err := NewHasher("search-secret")
	require.NoError(t, err)

	a := h.SearchHash("GHA-123456789-0")
	b := h.SearchHash("GHA-123456789-0")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotContains(t, a, "123456789")

	assert.Equal(t, a, h.SearchHash("  gha-123456789-0 "))
}

func TestSearchHash_DistinctInputs(t *testing.T) {
	h, err := NewHasher("search-secret")
	require.NoError(t, err)

	seen := make(map[string]string)
	for i := range 5000 {
		in := fmt.Sprintf("GHA-%09d-%d", i, i%10)
		digest := h.SearchHash(in)
		prev, dup := seen[digest]
		require.False(t, dup, "collision between %q and %q", prev, in)
		seen[digest] = in
	}
}

func TestSearchHash_KeyedBySecret(t *testing.T) {
	h1, err := NewHasher("secret-one")
	require.NoError(t, err)
	h2, err := NewHasher("secret-two")
	require.NoError(t, err)

	assert.NotEqual(t, h1.SearchHash("0241234567"), h2.SearchHash("0241234567"))
}
