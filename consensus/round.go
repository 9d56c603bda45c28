// Package consensus implements the stage engine: the per-round state
// machine that drives IDLE→STAGE0→STAGE1→STAGE2→STAGE3→COMMIT→IDLE,
// merging peer proposals at each stage and advancing on quorum.
package consensus

import (
	"sync"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/proposal"
)

// State is the round's position in the IDLE→STAGE0..3→COMMIT cycle.
type State uint8

const (
	Idle State = iota
	AtStage0
	AtStage1
	AtStage2
	AtStage3
	Committed
	Aborted
)

// Merged is the round's running merged-field workspace.
type Merged struct {
	Time               int64
	TimeConfig         uint64
	GroupNonce         hash.H32
	Users              []hpcrypto.PubKey
	InputOrderedHashes []hash.H32
	StateHash          hash.H32
	PatchHash          hash.H32
	OutputHash         hash.H32
	OutputSig          []byte
}

// Round is the mutable per-round workspace, owned
// exclusively by the stage engine that created it.
type Round struct {
	mu sync.Mutex

	SeqNo     uint64 // the ledger seq_no this round would produce
	State     State
	StartedMs int64

	// collected holds, per stage, each distinct signer's first proposal.
	collected map[proposal.Stage]map[hpcrypto.PubKey]*proposal.Proposal

	Merged Merged

	localNonce hash.H32
}

// NewRound starts a fresh round workspace at ledger seq_no seqNo.
func NewRound(seqNo uint64, startedMs int64, localNonce hash.H32) *Round {
	return &Round{
		SeqNo:      seqNo,
		State:      Idle,
		StartedMs:  startedMs,
		collected:  map[proposal.Stage]map[hpcrypto.PubKey]*proposal.Proposal{},
		localNonce: localNonce,
	}
}

// Receive records a validated proposal for whatever stage it claims,
// keeping only the first proposal seen per distinct signer.
// Validation (signature, UNL membership, staleness) is the caller's
// responsibility (proposal.Verify) — Receive never counts or forwards an
// ill-signed proposal itself, it simply never sees one.
func (r *Round) Receive(p *proposal.Proposal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.collected[p.Stage]
	if !ok {
		bucket = map[hpcrypto.PubKey]*proposal.Proposal{}
		r.collected[p.Stage] = bucket
	}
	if _, exists := bucket[p.PubKey]; exists {
		return
	}
	bucket[p.PubKey] = p
}

// StageProposals returns a snapshot of the distinct-signer proposals
// collected for stage s.
func (r *Round) StageProposals(s proposal.Stage) []*proposal.Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.collected[s]
	out := make([]*proposal.Proposal, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, p)
	}
	return out
}
