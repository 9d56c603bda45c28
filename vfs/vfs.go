// Package vfs declares the interface boundary to the external vfs daemon:
// a content-addressed, versioned Merkle filesystem with a single RW
// session and read-only snapshots, plus a replayable operation log. The
// daemon itself (a spawned child process) is out of scope; this package
// is the Go-side contract the consensus core is written against.
package vfs

import (
	"context"

	"github.com/hotpocket/hpcore/hash"
)

// BlockSize is the file block-hashing granularity: 4 MiB.
const BlockSize = 4 * 1024 * 1024

// DirEntry describes one child of a directory node.
type DirEntry struct {
	Name   string
	IsFile bool
	Hash   hash.H32
}

// Session is a handle returned by AcquireRW or StartRO, identifying which
// vfs view a call operates against.
type Session struct {
	Name   string // "rw" for the single RW session, else a read-only name
	Handle uint64
}

// Mount is the Go-side contract to one vfs daemon mount. Every call is
// expected to be routed through a single actor owning the daemon IPC
// connection; callers never hold a lock across a Mount call.
type Mount interface {
	// AcquireRW blocks until the exclusive RW session is available and
	// returns it.
	AcquireRW(ctx context.Context) (Session, error)
	// ReleaseRW releases the RW session without promoting it.
	ReleaseRW(ctx context.Context, s Session) error

	// StartRO opens a read-only snapshot, optionally pre-computing its
	// file block-hash maps.
	StartRO(ctx context.Context, name string, withHashMap bool) (Session, error)
	StopRO(ctx context.Context, s Session) error

	// GetHash returns the Merkle hash of the node at vpath under s.
	GetHash(ctx context.Context, s Session, vpath string) (hash.H32, error)
	// GetFileBlockHashes returns the per-BlockSize-block hash list for a file.
	GetFileBlockHashes(ctx context.Context, s Session, vpath string) ([]hash.H32, error)
	// GetDirChildrenHashes returns one hash entry per directory child.
	GetDirChildrenHashes(ctx context.Context, s Session, vpath string) ([]DirEntry, error)
	// PhysicalPath resolves vpath to a real filesystem path under s, for
	// materializing contract inputs.
	PhysicalPath(ctx context.Context, s Session, vpath string) (string, error)

	// ReadBlock reads one block's raw bytes from a file.
	ReadBlock(ctx context.Context, s Session, vpath string, blockIndex int) ([]byte, error)
	// WriteBlock applies a verified block to the RW session during
	// state-sync descent.
	WriteBlock(ctx context.Context, s Session, vpath string, blockIndex int, data []byte) error
	// EnsureDir creates a directory node under the RW session, used by
	// state-sync when the local vfs is missing an entire subtree.
	EnsureDir(ctx context.Context, s Session, vpath string, entries []DirEntry) error

	// Log operations.
	UpdateIndex(ctx context.Context, seqNo uint64) error
	TruncateLog(ctx context.Context, seqNo uint64) error
	ReadLogs(ctx context.Context, min, max uint64) ([]byte, error)
	AppendLogs(ctx context.Context, data []byte) error
	GetLastSeqNo(ctx context.Context) (uint64, error)
	GetHashBySeqNo(ctx context.Context, seqNo uint64) (hash.H32, error)
}

// Root computes the consensus-level Merkle root, H(patch_hash, state_hash).
func Root(patchHash, stateHash hash.H32) hash.H32 {
	return hash.SumAll(patchHash[:], stateHash[:])
}
