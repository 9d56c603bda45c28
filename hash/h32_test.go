package hash_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hash"
)

func TestSumDeterministic(t *testing.T) {
	a := hash.Sum([]byte("hello"))
	b := hash.Sum([]byte("hello"))
	require.Equal(t, a, b)
	require.NotEqual(t, hash.Zero, a)
}

func TestXorAllOrderIndependent(t *testing.T) {
	h1 := hash.Sum([]byte("a"))
	h2 := hash.Sum([]byte("b"))
	h3 := hash.Sum([]byte("c"))

	got1 := hash.XorAll([]hash.H32{h1, h2, h3})
	got2 := hash.XorAll([]hash.H32{h3, h1, h2})

	require.Equal(t, got1, got2)
}

func TestXorSelfInverse(t *testing.T) {
	h1 := hash.Sum([]byte("a"))
	require.Equal(t, hash.Zero, h1.Xor(h1))
}

func TestSortDeterministic(t *testing.T) {
	hs := []hash.H32{hash.Sum([]byte("z")), hash.Sum([]byte("a")), hash.Sum([]byte("m"))}
	hash.Sort(hs)
	for i := 1; i < len(hs); i++ {
		require.True(t, hs[i-1].Less(hs[i]) || hs[i-1] == hs[i])
	}
}

func TestHexRoundTrip(t *testing.T) {
	h := hash.Sum([]byte("round-trip"))
	s := h.String()
	back, err := hash.FromHex(s)
	require.NoError(t, err)
	require.Equal(t, h, back)
}

func TestSumAllMatchesConcatenation(t *testing.T) {
	a := hash.SumAll([]byte("foo"), []byte("bar"))
	b := hash.Sum([]byte("foobar"))
	require.Equal(t, a, b)
}
