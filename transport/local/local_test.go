package local_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/transport/local"
)

func TestUnicastSendIsReceivedByTargetOnly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := local.NewHub()
	defer hub.Close()

	a, err := hpcrypto.Generate()
	require.NoError(t, err)
	b, err := hpcrypto.Generate()
	require.NoError(t, err)

	linkA, err := hub.Join(ctx, a.Public)
	require.NoError(t, err)
	linkB, err := hub.Join(ctx, b.Public)
	require.NoError(t, err)

	require.NoError(t, linkA.Send(ctx, b.Public, []byte("hello")))

	msg, err := linkB.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), msg.Body)
}

func TestBroadcastReachesAllJoinedLinks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := local.NewHub()
	defer hub.Close()

	a, err := hpcrypto.Generate()
	require.NoError(t, err)
	b, err := hpcrypto.Generate()
	require.NoError(t, err)
	c, err := hpcrypto.Generate()
	require.NoError(t, err)

	linkA, err := hub.Join(ctx, a.Public)
	require.NoError(t, err)
	linkB, err := hub.Join(ctx, b.Public)
	require.NoError(t, err)
	linkC, err := hub.Join(ctx, c.Public)
	require.NoError(t, err)

	require.NoError(t, linkA.Broadcast(ctx, []byte("round-start")))

	mb, err := linkB.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("round-start"), mb.Body)

	mc, err := linkC.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("round-start"), mc.Body)
}
