package cuckoofilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappedHasher(t *testing.T) {
	h := NewMappedHasher(map[string][]byte{
		"foo1": []byte("has1"),
	})
	out := make([]byte, 4)
	h.Hash(out, []byte("foo1"))
	assert.Equal(t, []byte("has1"), out)

	// Requesting fewer bytes than stored truncates.
	short := make([]byte, 2)
	h.Hash(short, []byte("foo1"))
	assert.Equal(t, []byte("ha"), short)

	// Requesting more bytes than stored zero-pads.
	long := make([]byte, 6)
	h.Hash(long, []byte("foo1"))
	assert.Equal(t, []byte{'h', 'a', 's', '1', 0, 0}, long)
}

func TestMappedHasherUnmappedInputPanics(t *testing.T) {
	h := NewMappedHasher(map[string][]byte{"foo1": []byte("has1")})
	assert.Panics(t, func() {
		h.Hash(make([]byte, 4), []byte("unmapped"))
	})
}

func TestPrefixHasher(t *testing.T) {
	var h PrefixHasher
	out := make([]byte, 6)
	h.Hash(out, []byte("ab"))
	assert.Equal(t, []byte("ababab"), out)

	h.Hash(out, nil)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, out)
}

// TestMetroHasherDeterministic checks that the production hasher is a pure
// function of (len(out), in): repeated calls with the same arguments must
// agree, since Contains rederives fp/i1/i2 fresh on every call and must
// land on the same bytes it used at insertion time.
func TestMetroHasherDeterministic(t *testing.T) {
	h := newMetroHasher(42)
	a := make([]byte, 7)
	b := make([]byte, 7)
	h.Hash(a, []byte("some value"))
	h.Hash(b, []byte("some value"))
	assert.Equal(t, a, b)
}

// TestMetroHasherLengthDependent checks that two calls for the same input
// but different requested output lengths diverge (when truncated to the
// shorter length), rather than one simply being a truncation of the
// other.
func TestMetroHasherLengthDependent(t *testing.T) {
	h := newMetroHasher(0)
	four := make([]byte, 4)
	eight := make([]byte, 8)
	h.Hash(four, []byte("some value"))
	h.Hash(eight, []byte("some value"))
	require.Len(t, four, 4)
	require.Len(t, eight, 8)
	assert.NotEqual(t, four, eight[:4], "different requested lengths should diverge, not just truncate")
}
