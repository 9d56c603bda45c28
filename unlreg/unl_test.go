package unlreg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/unlreg"
)

func genKey(t *testing.T) hpcrypto.PubKey {
	t.Helper()
	id, err := hpcrypto.Generate()
	require.NoError(t, err)
	return id.Public
}

func TestQuorumCeilDivision(t *testing.T) {
	require.Equal(t, 3, unlreg.Quorum(3, 67))  // ceil(2.01) = 3
	require.Equal(t, 7, unlreg.Quorum(10, 67)) // ceil(6.7) = 7
	require.Equal(t, 10, unlreg.Quorum(10, 100))
	require.Equal(t, 0, unlreg.Quorum(0, 67))
}

func TestRegistryExistsAndQuorum(t *testing.T) {
	a, b, c := genKey(t), genKey(t), genKey(t)
	r := unlreg.New([]hpcrypto.PubKey{a, b, c}, 67)

	require.True(t, r.Exists(a))
	require.Equal(t, 3, r.Size())
	require.Equal(t, 3, r.Quorum())

	stranger := genKey(t)
	require.False(t, r.Exists(stranger))
}

func TestApplyPatchReplacesMembership(t *testing.T) {
	a, b := genKey(t), genKey(t)
	r := unlreg.New([]hpcrypto.PubKey{a}, 100)
	require.Equal(t, 1, r.Size())

	r.ApplyPatch([]hpcrypto.PubKey{a, b}, 67)
	require.Equal(t, 2, r.Size())
	require.Equal(t, 2, r.Quorum())
	require.True(t, r.Exists(b))
}

func TestMajorityTimeConfigFallsBackWithoutMajority(t *testing.T) {
	a, b, c := genKey(t), genKey(t), genKey(t)
	r := unlreg.New([]hpcrypto.PubKey{a, b, c}, 67)

	obs := []unlreg.TimeConfigObservation{
		{Signer: a, TimeConfig: 1000},
		{Signer: b, TimeConfig: 2000},
	}
	require.EqualValues(t, 500, r.MajorityTimeConfig(obs, 500))
}

func TestMajorityTimeConfigReturnsMajorityValue(t *testing.T) {
	a, b, c := genKey(t), genKey(t), genKey(t)
	r := unlreg.New([]hpcrypto.PubKey{a, b, c}, 67)

	obs := []unlreg.TimeConfigObservation{
		{Signer: a, TimeConfig: 1000},
		{Signer: b, TimeConfig: 1000},
		{Signer: c, TimeConfig: 2000},
	}
	require.EqualValues(t, 1000, r.MajorityTimeConfig(obs, 500))
}
