// Package node wires the per-process goroutines that drive one
// HotPocket validator: the stage engine's round loop, peer and user wire
// I/O, the ledger writer, and the reactive state/log sync paths. Server
// takes a flat struct of already-constructed dependencies and Run blocks
// the caller's goroutine until shutdown.
//
// Lock ordering: round, then peer_connections, then a round's
// collected_* (owned internally by consensus.Round), then parent_hashes.
// Every method here that needs more than one of these acquires them in
// that order and never holds one across a blocking call.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/hotpocket/hpcore/consensus"
	"github.com/hotpocket/hpcore/execfence"
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpconfig"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hplog"
	"github.com/hotpocket/hpcore/inputpool"
	"github.com/hotpocket/hpcore/ledger"
	"github.com/hotpocket/hpcore/logsync"
	"github.com/hotpocket/hpcore/metrics"
	"github.com/hotpocket/hpcore/rolectl"
	"github.com/hotpocket/hpcore/statesync"
	"github.com/hotpocket/hpcore/transport"
	"github.com/hotpocket/hpcore/unlreg"
	"github.com/hotpocket/hpcore/vfs"
)

// Deps are every already-constructed collaborator a Server needs. Callers
// (cmd/hotpocket) build these from hpconfig.Config and wire them in; Server
// itself constructs nothing but the consensus.Engine and its Executor
// adapter, since those two close over each other.
type Deps struct {
	Identity    hpcrypto.Identity
	ConfigLive  *hpconfig.Live
	UNL         *unlreg.Registry
	Pool        *inputpool.Pool
	Fence       *execfence.Fence
	Ledger      *ledger.Builder
	Mount       vfs.Mount
	Peers       transport.PeerChannel
	Users       transport.UserChannel
	StateSync   *statesync.Syncer
	LogSync     *logsync.Syncer
	Roles       *rolectl.Controller
	Health      *unlreg.PeerHealth
	Diagnostics *metrics.Diagnostics
	Log         hplog.Logger

	// FullHistory marks this node as one that preserves a replayable vfs
	// operation log: such nodes reconverge via LogSync.CatchUp
	// instead of StateSync.SyncTo, since block-sync would skip
	// intervening log records.
	FullHistory bool

	// ForwardInputs re-broadcasts admitted user inputs to the peer mesh,
	// so inputs observed only by a non-UNL node still reach validators.
	ForwardInputs bool
}

// commitJob is one round's outcome handed off from the consensus
// goroutine to ledger_writer so disk I/O never blocks the round loop.
// Committed rounds carry the agreed tuple plus the local bodies to
// persist alongside it; aborted rounds carry only seqNo/nowMs and extend
// the raw chain without touching the primary shard.
type commitJob struct {
	seqNo       uint64
	nowMs       int64
	nonce       hash.H32
	result      *consensus.CommitResult
	inputs      []inputpool.Input
	outputs     map[hash.H32][]byte
	contributed bool
	aborted     bool
}

// Server is one running HotPocket node: the stage engine plus every
// long-lived worker goroutine the protocol names.
type Server struct {
	d      Deps
	engine *consensus.Engine
	exec   *fenceExecutor

	roundMu sync.Mutex
	round   *consensus.Round

	peerConnMu sync.Mutex
	peerConns  map[hpcrypto.PubKey]time.Time

	parentMu    sync.Mutex
	lastPrimary hash.SeqHash
	lastRaw     hash.SeqHash

	seqMu     sync.Mutex
	nextSeqNo uint64

	commits chan commitJob
}

// NewServer assembles a Server from Deps. startSeqNo is the first ledger
// seq_no this node will attempt to produce (one past its last known
// ledger record).
func NewServer(d Deps, startSeqNo uint64, startRoot hash.SeqHash) *Server {
	exec := &fenceExecutor{fence: d.Fence, identity: d.Identity}
	s := &Server{
		d:           d,
		engine:      consensus.NewEngine(d.Identity, d.UNL, exec),
		exec:        exec,
		peerConns:   map[hpcrypto.PubKey]time.Time{},
		nextSeqNo:   startSeqNo,
		lastPrimary: startRoot,
		lastRaw:     startRoot,
		commits:     make(chan commitJob, 1),
	}
	return s
}

// Run blocks until ctx is cancelled, driving every named goroutine
// and returning once they have all exited.
func (s *Server) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	goroutines := []struct {
		name string
		fn   func(context.Context)
	}{
		{"consensus", s.consensusLoop},
		{"peer_io", s.peerIOLoop},
		{"user_io", s.userIOLoop},
		{"ledger_writer", s.ledgerWriterLoop},
	}

	for _, g := range goroutines {
		wg.Add(1)
		go func(name string, fn func(context.Context)) {
			defer wg.Done()
			log := hplog.Component(s.d.Log, name)
			log.Info().Msg("goroutine started")
			fn(ctx)
			log.Info().Msg("goroutine stopped")
		}(g.name, g.fn)
	}

	wg.Wait()
	return ctx.Err()
}

// currentRound returns the in-flight round under roundMu, or nil between
// rounds.
func (s *Server) currentRound() *consensus.Round {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	return s.round
}

// parents returns the last committed record's (primary, raw) SeqHash
// pair, the seed for the next round's proposal.
func (s *Server) parents() (hash.SeqHash, hash.SeqHash) {
	s.parentMu.Lock()
	defer s.parentMu.Unlock()
	return s.lastPrimary, s.lastRaw
}

func (s *Server) setParents(p, r hash.SeqHash) {
	s.parentMu.Lock()
	s.lastPrimary, s.lastRaw = p, r
	s.parentMu.Unlock()
}

func (s *Server) touchPeer(pk hpcrypto.PubKey) {
	s.peerConnMu.Lock()
	s.peerConns[pk] = time.Now()
	s.peerConnMu.Unlock()
}
