package consensus

import (
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/proposal"
	"github.com/hotpocket/hpcore/unlreg"
)

// Executor runs the execution fence for the merged input set locked
// in at stage 1. A nil error with ok=false means execution produced no
// result (it failed, or did not finish before the stage-2 deadline).
type Executor interface {
	Execute(inputHashes []hash.H32) (stateHash, patchHash, outputHash hash.H32, outputSig []byte, ok bool, err error)
}

// Engine drives one node's participation in the stage protocol. It owns no
// network I/O: callers broadcast the proposals Engine returns and feed back
// received peer proposals via Round.Receive.
type Engine struct {
	Identity hpcrypto.Identity
	UNL      *unlreg.Registry
	Exec     Executor
}

// NewEngine constructs an Engine for a validating node.
func NewEngine(id hpcrypto.Identity, unl *unlreg.Registry, exec Executor) *Engine {
	return &Engine{Identity: id, UNL: unl, Exec: exec}
}

// BeginRound starts a fresh round and returns the local stage-0 proposal,
// built from the candidate input/user sets the caller offers from the input
// pool.
func (e *Engine) BeginRound(seqNo uint64, nowMs int64, timeConfig uint64, localNonce hash.H32, users []hpcrypto.PubKey, inputHashes []hash.H32, lastPrimary, lastRaw hash.SeqHash) (*Round, *proposal.Proposal) {
	round := NewRound(seqNo, nowMs, localNonce)
	round.State = AtStage0
	round.Merged.TimeConfig = timeConfig

	p := &proposal.Proposal{
		Stage:              proposal.Stage0,
		Time:               nowMs,
		TimeConfig:         timeConfig,
		NodeNonce:          localNonce,
		Users:              users,
		InputOrderedHashes: inputHashes,
		LastPrimaryShardID: lastPrimary,
		LastRawShardID:     lastRaw,
	}
	p.Sign(e.Identity, e.Identity.Public)
	p.FromSelf = true
	round.Receive(p)
	return round, p
}

// AdvanceToStage performs the stage-k transition: gather the distinct-
// signer proposals collected for `from`, merge them, and build+sign the
// local proposal for `to`. For the stage1->stage2 transition (the execution
// fence), it invokes Exec and sets StateHash/PatchHash/OutputHash for
// the first time; execution failure leaves them zero and the local proposal
// omits output fields.
func (e *Engine) AdvanceToStage(round *Round, from, to proposal.Stage, nowMs int64) (*proposal.Proposal, error) {
	quorum := round.quorumFor(e.UNL)
	proposals := round.StageProposals(from)

	merged := MergeStage(proposals, quorum, round.Merged)
	merged.Time = RoundToGranularity(merged.Time, merged.TimeConfig)

	if to == proposal.Stage2 {
		inputs := merged.InputOrderedHashes
		stateHash, patchHash, outputHash, outputSig, ok, err := e.Exec.Execute(inputs)
		if err != nil {
			return nil, err
		}
		if ok {
			merged.StateHash = stateHash
			merged.PatchHash = patchHash
			merged.OutputHash = outputHash
			merged.OutputSig = outputSig
		}
		// on !ok, merged.*Hash stay at whatever prior value MergeStage
		// carried forward (zero, at the first execution attempt), and
		// the emitted proposal below simply omits them.
	}

	round.mu.Lock()
	round.Merged = merged
	round.State = stateFor(to)
	round.mu.Unlock()

	p := &proposal.Proposal{
		Stage:              to,
		Time:               merged.Time,
		TimeConfig:         merged.TimeConfig,
		NodeNonce:          round.localNonce,
		GroupNonce:         merged.GroupNonce,
		Users:              merged.Users,
		InputOrderedHashes: merged.InputOrderedHashes,
		OutputHash:         merged.OutputHash,
		OutputSig:          merged.OutputSig,
		StateHash:          merged.StateHash,
		PatchHash:          merged.PatchHash,
	}
	p.Sign(e.Identity, e.Identity.Public)
	p.FromSelf = true
	round.Receive(p)
	return p, nil
}

func stateFor(s proposal.Stage) State {
	switch s {
	case proposal.Stage0:
		return AtStage0
	case proposal.Stage1:
		return AtStage1
	case proposal.Stage2:
		return AtStage2
	case proposal.Stage3:
		return AtStage3
	default:
		return Idle
	}
}

// quorumFor reads the current UNL quorum. Split out so tests can drive
// MergeStage directly without an Engine.
func (r *Round) quorumFor(unl *unlreg.Registry) int {
	return unl.Quorum()
}

// CommitResult is the stage-3 agreed tuple a round commits with.
type CommitResult struct {
	StateHash   hash.H32
	PatchHash   hash.H32
	OutputHash  hash.H32
	GroupNonce  hash.H32
	InputHashes []hash.H32
	Users       []hpcrypto.PubKey
}

// TryCommit decides the commit: if >= quorum stage-3 proposals share the
// same (state_hash, patch_hash, input_hashes, output_hash, group_nonce) tuple, the round
// commits. Merges must be order-independent across peers, so this groups by tuple equality rather than trusting the locally-merged
// value alone, since a Byzantine minority could have pushed a different
// local merge.
func TryCommit(stage3Proposals []*proposal.Proposal, quorum int) (*CommitResult, bool) {
	type key struct {
		state, patch, output, nonce string
		inputs                      string
	}
	groups := map[key][]*proposal.Proposal{}
	for _, p := range stage3Proposals {
		hs := make([]hash.H32, len(p.InputOrderedHashes))
		copy(hs, p.InputOrderedHashes)
		hash.Sort(hs)
		inputKey := ""
		for _, h := range hs {
			inputKey += h.String()
		}
		k := key{
			state:  p.StateHash.String(),
			patch:  p.PatchHash.String(),
			output: p.OutputHash.String(),
			nonce:  p.GroupNonce.String(),
			inputs: inputKey,
		}
		groups[k] = append(groups[k], p)
	}

	for _, group := range groups {
		if len(group) < quorum {
			continue
		}
		hs := make([]hash.H32, len(group[0].InputOrderedHashes))
		copy(hs, group[0].InputOrderedHashes)
		hash.Sort(hs)
		return &CommitResult{
			StateHash:   group[0].StateHash,
			PatchHash:   group[0].PatchHash,
			OutputHash:  group[0].OutputHash,
			GroupNonce:  group[0].GroupNonce,
			InputHashes: hs,
			Users:       group[0].Users,
		}, true
	}
	return nil, false
}

// BestSupportedRoot finds the (state_hash, patch_hash) pair backed by the
// largest group of stage-3 proposals, independent of quorum. A round that
// fails TryCommit still needs a reconvergence target: this is the best
// available estimate of that root when no single tuple reached quorum.
// ok is false only when stage3Proposals is empty.
func BestSupportedRoot(stage3Proposals []*proposal.Proposal) (stateHash, patchHash hash.H32, support int, ok bool) {
	type key struct{ state, patch string }
	type val struct {
		state, patch hash.H32
		n            int
	}
	groups := map[key]*val{}
	for _, p := range stage3Proposals {
		k := key{p.StateHash.String(), p.PatchHash.String()}
		v, exists := groups[k]
		if !exists {
			v = &val{state: p.StateHash, patch: p.PatchHash}
			groups[k] = v
		}
		v.n++
	}

	var best *val
	for _, v := range groups {
		if best == nil || v.n > best.n {
			best = v
		}
	}
	if best == nil {
		return hash.Zero, hash.Zero, 0, false
	}
	return best.state, best.patch, best.n, true
}
