package hpcrypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hpcrypto"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	msg := []byte("stage-0 proposal content")
	sig := id.Sign(msg)

	require.True(t, hpcrypto.Verify(id.Public, msg, sig))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	sig := id.Sign([]byte("original"))
	require.False(t, hpcrypto.Verify(id.Public, []byte("tampered"), sig))
}

func TestFromSeedDeterministic(t *testing.T) {
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	reloaded, err := hpcrypto.FromSeed(id.Seed())
	require.NoError(t, err)
	require.Equal(t, id.Public, reloaded.Public)
}
