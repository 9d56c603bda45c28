// Package statesync implements block-level state sync: bringing a
// lagging or forked node's vfs to a target Merkle root known to quorum by
// recursively requesting only the subtrees that actually differ.
package statesync

import (
	"context"
	"math/rand"
	"sort"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hperrors"
	"github.com/hotpocket/hpcore/hplog"
	"github.com/hotpocket/hpcore/unlreg"
	"github.com/hotpocket/hpcore/vfs"
)

// AbandonThreshold caps how many resubmissions of a single request are
// attempted before giving up.
const AbandonThreshold = 10

// NodeResponse is what a peer returns for one `vpath` request: either a directory's children or a file's per-block hash list.
type NodeResponse struct {
	IsFile      bool
	Children    []vfs.DirEntry
	BlockHashes []hash.H32
}

// Fetcher abstracts the peer wire round-trip (request/response framing
// and the authenticated transport itself live elsewhere); a concrete
// implementation marshals these calls onto transport.PeerChannel.
type Fetcher interface {
	FetchNode(ctx context.Context, peer hpcrypto.PubKey, vpath string, expectedHash hash.H32) (NodeResponse, error)
	FetchBlock(ctx context.Context, peer hpcrypto.PubKey, vpath string, blockIndex int, expectedHash hash.H32) ([]byte, error)
}

// Syncer drives one node's state-sync attempts.
type Syncer struct {
	Mount         vfs.Mount
	UNL           *unlreg.Registry
	Fetch         Fetcher
	ResubmitAfter time.Duration
	Log           hplog.Logger
}

// NewSyncer builds a Syncer; resubmitAfter should be 0.7*roundtime.
func NewSyncer(mount vfs.Mount, unl *unlreg.Registry, fetch Fetcher, resubmitAfter time.Duration, log hplog.Logger) *Syncer {
	return &Syncer{Mount: mount, UNL: unl, Fetch: fetch, ResubmitAfter: resubmitAfter, Log: hplog.Component(log, "state_sync")}
}

// SyncTo descends from "/" comparing the local root to
// targetRoot, fetching and applying only the subtrees that differ, then
// re-reads the local root to confirm the descent actually converged.
func (s *Syncer) SyncTo(ctx context.Context, session vfs.Session, targetRoot hash.H32) error {
	local, err := s.Mount.GetHash(ctx, session, "/")
	if err != nil {
		return hperrors.Fatal("statesync_local_root_unavailable", err)
	}
	if local == targetRoot {
		return nil
	}
	if err := s.descend(ctx, session, "/", targetRoot); err != nil {
		return err
	}
	local, err = s.Mount.GetHash(ctx, session, "/")
	if err != nil {
		return hperrors.Fatal("statesync_local_root_unavailable", err)
	}
	if local != targetRoot {
		return hperrors.Abort("statesync_root_mismatch", nil)
	}
	return nil
}

// descend handles one vpath: fetch the node, verify its
// hash against expectedHash, and recurse into children/blocks whose hash
// differs from what's already local.
func (s *Syncer) descend(ctx context.Context, session vfs.Session, vpath string, expectedHash hash.H32) error {
	resp, err := s.requestWithRetry(ctx, vpath, expectedHash)
	if err != nil {
		return err
	}

	if resp.IsFile {
		return s.syncFile(ctx, session, vpath, resp.BlockHashes)
	}
	return s.syncDir(ctx, session, vpath, resp.Children)
}

func (s *Syncer) syncDir(ctx context.Context, session vfs.Session, vpath string, children []vfs.DirEntry) error {
	if err := s.Mount.EnsureDir(ctx, session, vpath, children); err != nil {
		return hperrors.Fatal("statesync_ensure_dir_failed", err)
	}
	for _, child := range children {
		childPath := joinVPath(vpath, child.Name)
		localHash, err := s.Mount.GetHash(ctx, session, childPath)
		if err == nil && localHash == child.Hash {
			continue // already have this subtree
		}
		if err := s.descend(ctx, session, childPath, child.Hash); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) syncFile(ctx context.Context, session vfs.Session, vpath string, blockHashes []hash.H32) error {
	localBlocks, _ := s.Mount.GetFileBlockHashes(ctx, session, vpath)
	for i, expected := range blockHashes {
		if i < len(localBlocks) && localBlocks[i] == expected {
			continue
		}
		block, err := s.requestBlockWithRetry(ctx, vpath, i, expected)
		if err != nil {
			return err
		}
		if err := s.Mount.WriteBlock(ctx, session, vpath, i, block); err != nil {
			return hperrors.Fatal("statesync_write_block_failed", err)
		}
	}
	return nil
}

// requestWithRetry implements the resubmit/abandon loop for a node
// request. Every response is verified against the parent-declared
// expectedHash before it is returned: the node hash is recomputed from
// the response's own children (or block hashes) and a mismatch counts as
// a failed attempt and the response is discarded; the next attempt asks a
// freshly drawn random UNL peer, which can be the same one.
func (s *Syncer) requestWithRetry(ctx context.Context, vpath string, expectedHash hash.H32) (NodeResponse, error) {
	reqID := requestID()
	var lastErr error
	for attempt := 0; attempt < AbandonThreshold; attempt++ {
		peer := s.randomPeer()
		attemptCtx, cancel := context.WithTimeout(ctx, s.ResubmitAfter)
		resp, err := s.Fetch.FetchNode(attemptCtx, peer, vpath, expectedHash)
		cancel()
		if err == nil {
			if nodeHash(resp) != expectedHash {
				lastErr = hperrors.Transient("statesync_node_hash_mismatch", nil)
				s.Log.Debug().Str("request_id", reqID).Str("vpath", vpath).Int("attempt", attempt).Msg("node hash mismatch")
				continue
			}
			return resp, nil
		}
		lastErr = err
		s.Log.Debug().Str("request_id", reqID).Str("vpath", vpath).Int("attempt", attempt).Err(err).Msg("node fetch attempt failed")
	}
	return NodeResponse{}, hperrors.Abort("statesync_abandoned", lastErr)
}

// nodeHash recomputes a fetched node's Merkle hash from the response
// body, using the vfs hashing rules: a directory folds (name, child
// hash) pairs in name order, a file folds its block hashes in order.
func nodeHash(resp NodeResponse) hash.H32 {
	if resp.IsFile {
		var parts [][]byte
		for _, b := range resp.BlockHashes {
			bh := b
			parts = append(parts, bh[:])
		}
		return hash.SumAll(parts...)
	}

	sorted := append([]vfs.DirEntry(nil), resp.Children...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var parts [][]byte
	for _, c := range sorted {
		ch := c.Hash
		parts = append(parts, []byte(c.Name), ch[:])
	}
	return hash.SumAll(parts...)
}

func (s *Syncer) requestBlockWithRetry(ctx context.Context, vpath string, blockIndex int, expectedHash hash.H32) ([]byte, error) {
	reqID := requestID()
	var lastErr error
	for attempt := 0; attempt < AbandonThreshold; attempt++ {
		peer := s.randomPeer()
		attemptCtx, cancel := context.WithTimeout(ctx, s.ResubmitAfter)
		block, err := s.Fetch.FetchBlock(attemptCtx, peer, vpath, blockIndex, expectedHash)
		cancel()
		if err == nil {
			if hash.Sum(block) != expectedHash {
				lastErr = hperrors.Transient("statesync_block_hash_mismatch", nil)
				s.Log.Debug().Str("request_id", reqID).Str("vpath", vpath).Int("block", blockIndex).Msg("block hash mismatch")
				continue
			}
			return block, nil
		}
		lastErr = err
		s.Log.Debug().Str("request_id", reqID).Str("vpath", vpath).Int("block", blockIndex).Int("attempt", attempt).Err(err).Msg("block fetch attempt failed")
	}
	return nil, hperrors.Abort("statesync_abandoned", lastErr)
}

func (s *Syncer) randomPeer() hpcrypto.PubKey {
	members := s.UNL.Members()
	return members[rand.Intn(len(members))]
}

// requestID mints a correlation id for one resubmit/abandon loop, so its
// retries can be grepped together across the resulting log lines.
func requestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "unavailable"
	}
	return id.String()
}

func joinVPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
