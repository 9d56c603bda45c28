package statesync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hplog"
	"github.com/hotpocket/hpcore/statesync"
	"github.com/hotpocket/hpcore/unlreg"
	"github.com/hotpocket/hpcore/vfs"
	"github.com/hotpocket/hpcore/vfs/memvfs"
)

// peerFetcher answers statesync.Fetcher requests straight out of an
// in-memory peer mount, standing in for the real wire round-trip (a
// non-goal) so the recursive-descent logic is testable in-process.
type peerFetcher struct {
	peer    vfs.Mount
	session vfs.Session
}

func (f *peerFetcher) FetchNode(ctx context.Context, peer hpcrypto.PubKey, vpath string, expected hash.H32) (statesync.NodeResponse, error) {
	children, err := f.peer.GetDirChildrenHashes(ctx, f.session, vpath)
	if err == nil {
		return statesync.NodeResponse{IsFile: false, Children: children}, nil
	}
	blocks, err := f.peer.GetFileBlockHashes(ctx, f.session, vpath)
	if err != nil {
		return statesync.NodeResponse{}, err
	}
	return statesync.NodeResponse{IsFile: true, BlockHashes: blocks}, nil
}

func (f *peerFetcher) FetchBlock(ctx context.Context, peer hpcrypto.PubKey, vpath string, blockIndex int, expected hash.H32) ([]byte, error) {
	return f.peer.ReadBlock(ctx, f.session, vpath, blockIndex)
}

func mustID(t *testing.T) hpcrypto.Identity {
	t.Helper()
	id, err := hpcrypto.Generate()
	require.NoError(t, err)
	return id
}

func TestSyncToReplicatesMissingSubtree(t *testing.T) {
	ctx := context.Background()

	peer := memvfs.New()
	peerSession, err := peer.AcquireRW(ctx)
	require.NoError(t, err)
	require.NoError(t, peer.WriteBlock(ctx, peerSession, "/contract/state.bin", 0, []byte("hello state")))
	require.NoError(t, peer.WriteBlock(ctx, peerSession, "/contract/extra.bin", 0, []byte("more")))

	targetRoot, err := peer.GetHash(ctx, peerSession, "/")
	require.NoError(t, err)

	a := mustID(t)
	unl := unlreg.New([]hpcrypto.PubKey{a.Public}, 80)

	local := memvfs.New()
	localSession, err := local.AcquireRW(ctx)
	require.NoError(t, err)

	syncer := statesync.NewSyncer(local, unl, &peerFetcher{peer: peer, session: peerSession}, 50*time.Millisecond, hplog.New(nil, "debug"))
	require.NoError(t, syncer.SyncTo(ctx, localSession, targetRoot))

	gotRoot, err := local.GetHash(ctx, localSession, "/")
	require.NoError(t, err)
	require.Equal(t, targetRoot, gotRoot)
}

func TestSyncToIsNoOpWhenRootsAlreadyMatch(t *testing.T) {
	ctx := context.Background()

	peer := memvfs.New()
	peerSession, err := peer.AcquireRW(ctx)
	require.NoError(t, err)
	require.NoError(t, peer.WriteBlock(ctx, peerSession, "/contract/state.bin", 0, []byte("hello")))
	targetRoot, err := peer.GetHash(ctx, peerSession, "/")
	require.NoError(t, err)

	a := mustID(t)
	unl := unlreg.New([]hpcrypto.PubKey{a.Public}, 80)

	syncer := statesync.NewSyncer(peer, unl, &peerFetcher{peer: peer, session: peerSession}, 50*time.Millisecond, hplog.New(nil, "debug"))
	require.NoError(t, syncer.SyncTo(ctx, peerSession, targetRoot))
}

func TestRequestAbandonsAfterThreshold(t *testing.T) {
	ctx := context.Background()

	a := mustID(t)
	unl := unlreg.New([]hpcrypto.PubKey{a.Public}, 80)
	local := memvfs.New()
	localSession, err := local.AcquireRW(ctx)
	require.NoError(t, err)

	syncer := statesync.NewSyncer(local, unl, alwaysFailFetcher{}, time.Millisecond, hplog.New(nil, "debug"))
	err = syncer.SyncTo(ctx, localSession, hash.Sum([]byte("unreachable-root")))
	require.Error(t, err)
}

func TestSyncToRejectsLyingPeer(t *testing.T) {
	ctx := context.Background()

	a := mustID(t)
	unl := unlreg.New([]hpcrypto.PubKey{a.Public}, 80)
	local := memvfs.New()
	localSession, err := local.AcquireRW(ctx)
	require.NoError(t, err)

	// the fetcher answers every node request with children that do not
	// hash to the requested subtree, as a malicious peer would.
	syncer := statesync.NewSyncer(local, unl, lyingFetcher{}, time.Millisecond, hplog.New(nil, "debug"))
	err = syncer.SyncTo(ctx, localSession, hash.Sum([]byte("some-other-root")))
	require.Error(t, err)

	// nothing the liar sent may have been applied.
	entries, err := local.GetDirChildrenHashes(ctx, localSession, "/")
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, "forged", e.Name)
	}
}

// lyingFetcher returns well-formed responses whose recomputed hash never
// matches the parent-declared one.
type lyingFetcher struct{}

func (lyingFetcher) FetchNode(ctx context.Context, peer hpcrypto.PubKey, vpath string, expected hash.H32) (statesync.NodeResponse, error) {
	return statesync.NodeResponse{
		Children: []vfs.DirEntry{{Name: "forged", IsFile: true, Hash: hash.Sum([]byte("forged"))}},
	}, nil
}

func (lyingFetcher) FetchBlock(ctx context.Context, peer hpcrypto.PubKey, vpath string, blockIndex int, expected hash.H32) ([]byte, error) {
	return []byte("not the requested block"), nil
}

type alwaysFailFetcher struct{}

func (alwaysFailFetcher) FetchNode(ctx context.Context, peer hpcrypto.PubKey, vpath string, expected hash.H32) (statesync.NodeResponse, error) {
	return statesync.NodeResponse{}, context.DeadlineExceeded
}

func (alwaysFailFetcher) FetchBlock(ctx context.Context, peer hpcrypto.PubKey, vpath string, blockIndex int, expected hash.H32) ([]byte, error) {
	return nil, context.DeadlineExceeded
}
