// Package logsync implements log sync for full-history nodes: nodes
// that must preserve a replayable operation log of every vfs mutation
// cannot use block-sync (it would skip intervening log records), so
// instead they find the highest point where their log's index already
// agrees with their ledger, then fetch the remainder.
package logsync

import (
	"context"
	"math/rand"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hperrors"
	"github.com/hotpocket/hpcore/hplog"
	"github.com/hotpocket/hpcore/ledger"
	"github.com/hotpocket/hpcore/statesync"
	"github.com/hotpocket/hpcore/unlreg"
	"github.com/hotpocket/hpcore/vfs"
)

// LedgerReader is the minimal ledger lookup log sync needs to compute
// H(config_hash, state_hash) at a given seq_no.
type LedgerReader interface {
	Get(seqNo uint64) (*ledger.Record, error)
}

// Fetcher abstracts the peer round-trip for log bytes; wire framing is a
// non-goal.
type Fetcher interface {
	FetchLog(ctx context.Context, peer hpcrypto.PubKey, targetSeqNo, minRecordID uint64) ([]byte, error)
}

// Syncer drives one full-history node's log-sync attempts.
type Syncer struct {
	Mount         vfs.Mount
	Ledger        LedgerReader
	UNL           *unlreg.Registry
	Fetch         Fetcher
	ResubmitAfter time.Duration
	Log           hplog.Logger
}

// NewSyncer builds a Syncer.
func NewSyncer(mount vfs.Mount, ledgerReader LedgerReader, unl *unlreg.Registry, fetch Fetcher, resubmitAfter time.Duration, log hplog.Logger) *Syncer {
	return &Syncer{Mount: mount, Ledger: ledgerReader, UNL: unl, Fetch: fetch, ResubmitAfter: resubmitAfter, Log: hplog.Component(log, "log_sync")}
}

// rootAt computes the ledger's root at seqNo as H(config_hash, state_hash).
func rootAt(r *ledger.Record) hash.H32 {
	return vfs.Root(r.ConfigHash, r.StateHash)
}

// JoiningPoint finds where log and ledger last agree: walk backwards from
// min(lastInLog, lastInLedger), comparing the ledger's root at each
// seq_no to the log index's root at that seq_no, and stop at the first
// match. If none is found, the joining point is genesis (seq_no 0).
func (s *Syncer) JoiningPoint(ctx context.Context) (uint64, error) {
	lastInLog, err := s.Mount.GetLastSeqNo(ctx)
	if err != nil {
		return 0, hperrors.Fatal("logsync_last_log_seq_unavailable", err)
	}

	start := lastInLog
	for seqNo := start; ; seqNo-- {
		rec, err := s.Ledger.Get(seqNo)
		if err == nil {
			logRoot, logErr := s.Mount.GetHashBySeqNo(ctx, seqNo)
			if logErr == nil && logRoot == rootAt(rec) {
				return seqNo, nil
			}
		}
		if seqNo == 0 {
			break
		}
	}
	return 0, nil // none found: fall back to genesis
}

// CatchUp determines the joining point, truncates the log to it, fetches
// the remainder from a random peer, appends it, and reports whether the local root now matches target.
func (s *Syncer) CatchUp(ctx context.Context, session vfs.Session, targetSeqNo uint64, targetRoot hash.H32) (bool, error) {
	joiningPoint, err := s.JoiningPoint(ctx)
	if err != nil {
		return false, err
	}

	if err := s.Mount.TruncateLog(ctx, joiningPoint); err != nil {
		return false, hperrors.Fatal("logsync_truncate_failed", err)
	}

	body, err := s.fetchWithRetry(ctx, targetSeqNo, joiningPoint)
	if err != nil {
		return false, err
	}

	if err := s.Mount.AppendLogs(ctx, body); err != nil {
		return false, hperrors.Fatal("logsync_append_failed", err)
	}
	if err := s.Mount.UpdateIndex(ctx, targetSeqNo); err != nil {
		return false, hperrors.Fatal("logsync_index_update_failed", err)
	}

	local, err := s.Mount.GetHash(ctx, session, "/")
	if err != nil {
		return false, hperrors.Fatal("logsync_local_root_unavailable", err)
	}
	return local == targetRoot, nil
}

func (s *Syncer) fetchWithRetry(ctx context.Context, targetSeqNo, minRecordID uint64) ([]byte, error) {
	reqID := requestID()
	var lastErr error
	for attempt := 0; attempt < statesync.AbandonThreshold; attempt++ {
		peer := s.randomPeer()
		attemptCtx, cancel := context.WithTimeout(ctx, s.ResubmitAfter)
		body, err := s.Fetch.FetchLog(attemptCtx, peer, targetSeqNo, minRecordID)
		cancel()
		if err == nil {
			return body, nil
		}
		lastErr = err
		s.Log.Debug().Str("request_id", reqID).Uint64("target_seq_no", targetSeqNo).Int("attempt", attempt).Err(err).Msg("log fetch attempt failed")
	}
	return nil, hperrors.Abort("logsync_abandoned", lastErr)
}

func (s *Syncer) randomPeer() hpcrypto.PubKey {
	members := s.UNL.Members()
	return members[rand.Intn(len(members))]
}

// requestID mints a correlation id for one fetch/abandon loop.
func requestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "unavailable"
	}
	return id.String()
}
