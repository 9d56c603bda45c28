package inputpool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/inputpool"
)

func TestForwardGatedOnRequirement(t *testing.T) {
	in, _ := signedInput(t, 1, "hi")

	_, ok := inputpool.Forward(in, []byte("peer-id"), false)
	require.False(t, ok)

	fwd, ok := inputpool.Forward(in, []byte("peer-id"), true)
	require.True(t, ok)
	require.Equal(t, in.Digest(), fwd.Input.Digest())
	require.Equal(t, []byte("peer-id"), fwd.FromPeer)
}
