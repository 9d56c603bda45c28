package memvfs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/vfs"
	"github.com/hotpocket/hpcore/vfs/memvfs"
)

func TestWriteBlockChangesRootHash(t *testing.T) {
	ctx := context.Background()
	m := memvfs.New()
	s := vfs.Session{Name: "rw"}

	before, err := m.GetHash(ctx, s, "/")
	require.NoError(t, err)

	require.NoError(t, m.WriteBlock(ctx, s, "/contract/state.bin", 0, []byte("hello")))

	after, err := m.GetHash(ctx, s, "/")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestGetDirChildrenHashesReflectsChildren(t *testing.T) {
	ctx := context.Background()
	m := memvfs.New()
	s := vfs.Session{Name: "rw"}
	require.NoError(t, m.WriteBlock(ctx, s, "/a/file.bin", 0, []byte("x")))

	entries, err := m.GetDirChildrenHashes(ctx, s, "/a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "file.bin", entries[0].Name)
	require.True(t, entries[0].IsFile)
}

func TestLogAppendAndRead(t *testing.T) {
	ctx := context.Background()
	m := memvfs.New()
	require.NoError(t, m.AppendLogs(ctx, []byte("log1")))
	require.NoError(t, m.AppendLogs(ctx, []byte("log2")))

	last, err := m.GetLastSeqNo(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, last)

	got, err := m.ReadLogs(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("log1log2"), got)
}
