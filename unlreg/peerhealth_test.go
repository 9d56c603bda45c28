package unlreg_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/unlreg"
)

func TestPeerHealthBansAfterThreshold(t *testing.T) {
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	h := unlreg.NewPeerHealth(3)
	now := time.Now()

	require.False(t, h.RecordBadMessage(id.Public, now))
	require.False(t, h.RecordBadMessage(id.Public, now.Add(time.Second)))
	require.True(t, h.RecordBadMessage(id.Public, now.Add(2*time.Second)))
	require.True(t, h.IsBanned(id.Public))
}

func TestPeerHealthWindowExpiresOldEvents(t *testing.T) {
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	h := unlreg.NewPeerHealth(3)
	now := time.Now()

	require.False(t, h.RecordBadMessage(id.Public, now))
	require.False(t, h.RecordBadMessage(id.Public, now.Add(time.Second)))
	// third event falls outside the one-minute window relative to the
	// first two, so it should not trip the ban.
	require.False(t, h.RecordBadMessage(id.Public, now.Add(2*time.Minute)))
	require.False(t, h.IsBanned(id.Public))
}

func TestUnbanClearsState(t *testing.T) {
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	h := unlreg.NewPeerHealth(1)
	now := time.Now()
	require.True(t, h.RecordBadMessage(id.Public, now))
	require.True(t, h.IsBanned(id.Public))

	h.Unban(id.Public)
	require.False(t, h.IsBanned(id.Public))
}
