package node

import (
	"context"
	"time"

	"github.com/hotpocket/hpcore/consensus"
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hplog"
	"github.com/hotpocket/hpcore/inputpool"
	"github.com/hotpocket/hpcore/metrics"
	"github.com/hotpocket/hpcore/proposal"
	"github.com/hotpocket/hpcore/rolectl"
	"github.com/hotpocket/hpcore/unlreg"
	"github.com/hotpocket/hpcore/vfs"
)

// consensusLoop drives IDLE→STAGE0..3→COMMIT→IDLE, one round per
// iteration, timer-bounded by roundtime/stage_slice from the live config.
// It is the sole writer of s.round and the sole caller into s.engine/s.exec,
// so no locking is needed around engine calls themselves; only the round
// pointer (read by peer_io) and the parent hashes (read when building the
// next BeginRound) are shared state, guarded by their own mutexes.
func (s *Server) consensusLoop(ctx context.Context) {
	log := hplog.Component(s.d.Log, "consensus")

	for {
		if ctx.Err() != nil {
			return
		}

		cfg := s.d.ConfigLive.Current().Patch
		roundtime := time.Duration(cfg.Consensus.RoundTime) * time.Millisecond
		stageSlice := time.Duration(cfg.Consensus.StageSlice) * roundtime / 100
		if stageSlice <= 0 {
			stageSlice = time.Millisecond
		}

		if !s.runOneRound(ctx, log, stageSlice) {
			// Abort (no quorum by STAGE3): the protocol continues to the
			// next round, so retry immediately at the same seq_no rather
			// than waiting out the rest of roundtime, which the stage
			// windows already consumed.
			continue
		}
	}
}

// runOneRound executes the four stage transitions and, on quorum, hands
// the committed tuple to ledger_writer. Returns false on abort.
func (s *Server) runOneRound(ctx context.Context, log hplog.Logger, stageSlice time.Duration) bool {
	s.seqMu.Lock()
	seqNo := s.nextSeqNo
	s.seqMu.Unlock()

	roundCtx, span := metrics.StartRoundSpan(ctx, seqNo)
	defer span.End()
	start := time.Now()

	lastPrimary, lastRaw := s.parents()

	admitted := s.d.Pool.Drain()
	bodies := make(map[hash.H32][]byte, len(admitted))
	for _, in := range admitted {
		bodies[in.Digest()] = in.Container
	}
	s.exec.setBodies(bodies)

	inputHashes := inputpool.OrderedHashes(admitted)
	users := distinctUsers(admitted)
	nonce := hash.RandomNonce()
	timeConfig := s.roundTimeConfig()

	// An observer never proposes: it still opens a round workspace to
	// collect the validators' proposals and track the committed outcome,
	// but contributes no signed stages of its own.
	isValidator := s.d.Roles.Role() == rolectl.Validator

	var round *consensus.Round
	if isValidator {
		var localProposal *proposal.Proposal
		round, localProposal = s.engine.BeginRound(seqNo, start.UnixMilli(), timeConfig, nonce, users, inputHashes, lastPrimary, lastRaw)
		s.roundMu.Lock()
		s.round = round
		s.roundMu.Unlock()
		_ = s.d.Peers.Broadcast(roundCtx, frameProposal(localProposal))
	} else {
		round = consensus.NewRound(seqNo, start.UnixMilli(), nonce)
		s.roundMu.Lock()
		s.round = round
		s.roundMu.Unlock()
	}

	stages := []proposal.Stage{proposal.Stage0, proposal.Stage1, proposal.Stage2, proposal.Stage3}
	for i := 0; i < len(stages)-1; i++ {
		select {
		case <-time.After(stageSlice):
		case <-ctx.Done():
			return false
		}

		if !isValidator {
			continue
		}
		next, err := s.engine.AdvanceToStage(round, stages[i], stages[i+1], time.Now().UnixMilli())
		if err != nil {
			log.Error().Err(err).Uint64("seq_no", seqNo).Msg("stage advance failed")
			return false
		}
		_ = s.d.Peers.Broadcast(roundCtx, frameProposal(next))
	}

	select {
	case <-time.After(stageSlice):
	case <-ctx.Done():
		return false
	}

	quorum := s.d.UNL.Quorum()
	result, ok := consensus.TryCommit(round.StageProposals(proposal.Stage3), quorum)
	s.d.Diagnostics.RecordRoundDuration(roundCtx, float64(time.Since(start).Milliseconds()))

	contributed := containsSelf(round.StageProposals(proposal.Stage3), s.d.Identity.Public)
	// No cross-node seq_no telemetry is wired at this layer (that belongs
	// to log_sync/state_sync's peer responses), so the lag check passes
	// the node's own view on both sides; only the consecutive-miss path
	// is exercised here.
	s.d.Roles.RecordRoundOutcome(contributed, seqNo, seqNo)

	if !ok {
		s.d.Diagnostics.RoundsAborted.Inc()
		log.Warn().Uint64("seq_no", seqNo).Msg("round aborted: no quorum")
		// the raw chain still records the attempt; only the primary
		// shard is quorum-gated.
		s.commits <- commitJob{seqNo: seqNo, nowMs: time.Now().UnixMilli(), aborted: true}
		if state, patch, support, haveTarget := consensus.BestSupportedRoot(round.StageProposals(proposal.Stage3)); haveTarget && support > 1 {
			s.reconcileState(ctx, log, seqNo, vfs.Root(patch, state))
		}
		return false
	}

	matched := false
	for _, p := range round.StageProposals(proposal.Stage3) {
		if p.PubKey == s.d.Identity.Public && p.StateHash == result.StateHash && p.PatchHash == result.PatchHash && p.OutputHash == result.OutputHash {
			matched = true
		}
	}

	var outputs map[hash.H32][]byte
	if matched {
		outputs = s.exec.lastOutputs
	} else {
		// This node's own execution result did not match the committed
		// tuple (or it failed to execute at all): the ledger still
		// advances using the UNL-agreed values, but the local vfs is now
		// behind/forked relative to result.StateHash and must reconverge
		// before the next round's execution fence runs.
		outputs = map[hash.H32][]byte{}
		s.reconcileState(ctx, log, seqNo, vfs.Root(result.PatchHash, result.StateHash))
	}

	s.commits <- commitJob{
		seqNo:       seqNo,
		nowMs:       time.Now().UnixMilli(),
		nonce:       result.GroupNonce,
		result:      result,
		inputs:      admitted,
		outputs:     outputs,
		contributed: matched,
	}

	s.d.Diagnostics.RoundsComplete.Inc()
	s.seqMu.Lock()
	s.nextSeqNo = seqNo + 1
	s.seqMu.Unlock()

	// A demoted validator re-promotes once its vfs matches the committed
	// (state, patch) pair and it is producing the next seq_no in line.
	if localState, localPatch, err := s.readRootsForPromoteCheck(ctx); err == nil {
		matches := localState == result.StateHash && localPatch == result.PatchHash
		s.d.Roles.TryPromote(matches, true)
	}
	return true
}

// readRootsForPromoteCheck reads the state and patch subtree hashes
// through a short-lived read-only session, so the check never contends
// with the RW session.
func (s *Server) readRootsForPromoteCheck(ctx context.Context) (stateHash, patchHash hash.H32, err error) {
	session, err := s.d.Mount.StartRO(ctx, "promote-check", false)
	if err != nil {
		return hash.Zero, hash.Zero, err
	}
	defer s.d.Mount.StopRO(ctx, session)
	stateHash, err = s.d.Mount.GetHash(ctx, session, "/state")
	if err != nil {
		return hash.Zero, hash.Zero, err
	}
	patchHash, err = s.d.Mount.GetHash(ctx, session, "/patch.cfg")
	if err != nil {
		return hash.Zero, hash.Zero, err
	}
	return stateHash, patchHash, nil
}

// reconcileState reconverges the local vfs toward the quorum's advertised
// root: it acquires the RW session, runs one sync attempt toward target,
// and releases the session, all before the consensus loop starts the next round's
// execution fence (which re-acquires RW itself). Running this inline on
// the consensus goroutine rather than a separate thread keeps it
// naturally serialized with the execution fence without adding a second
// RW-session owner, since a real vfs's single-RW-session invariant
// otherwise requires exactly that serialization anyway.
func (s *Server) reconcileState(ctx context.Context, log hplog.Logger, targetSeqNo uint64, target hash.H32) {
	if target.IsZero() {
		return
	}
	session, err := s.d.Mount.AcquireRW(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("state sync: rw session unavailable")
		return
	}
	defer s.d.Mount.ReleaseRW(ctx, session)

	if s.d.FullHistory {
		matched, err := s.d.LogSync.CatchUp(ctx, session, targetSeqNo, target)
		if err != nil {
			log.Warn().Err(err).Str("target", target.String()).Msg("log sync abandoned")
			s.d.Diagnostics.SyncAbandons.WithLabelValues("log").Inc()
			return
		}
		if !matched {
			log.Warn().Str("target", target.String()).Msg("log sync caught up but root still diverges")
		}
		return
	}

	if err := s.d.StateSync.SyncTo(ctx, session, target); err != nil {
		log.Warn().Err(err).Str("target", target.String()).Msg("state sync abandoned")
		s.d.Diagnostics.SyncAbandons.WithLabelValues("state").Inc()
	}
}

func roundtimeMs(d Deps) int {
	return d.ConfigLive.Current().Patch.Consensus.RoundTime
}

// roundTimeConfig resolves the next round's time granularity from the
// prior round's collected proposals: the value a UNL majority claimed,
// falling back to the locally configured roundtime. Called before the new
// round replaces s.round, while the prior round's proposals are still
// readable.
func (s *Server) roundTimeConfig() uint64 {
	localDefault := uint64(roundtimeMs(s.d))
	prev := s.currentRound()
	if prev == nil {
		return localDefault
	}
	var obs []unlreg.TimeConfigObservation
	for _, stage := range []proposal.Stage{proposal.Stage0, proposal.Stage1, proposal.Stage2, proposal.Stage3} {
		for _, p := range prev.StageProposals(stage) {
			obs = append(obs, unlreg.TimeConfigObservation{Signer: p.PubKey, TimeConfig: p.TimeConfig})
		}
	}
	return s.d.UNL.MajorityTimeConfig(obs, localDefault)
}

func containsSelf(proposals []*proposal.Proposal, self hpcrypto.PubKey) bool {
	for _, p := range proposals {
		if p.PubKey == self {
			return true
		}
	}
	return false
}

// distinctUsers extracts the distinct submitting pubkeys from a batch of
// admitted inputs, for the proposal's Users field.
func distinctUsers(inputs []inputpool.Input) []hpcrypto.PubKey {
	seen := map[hpcrypto.PubKey]struct{}{}
	out := make([]hpcrypto.PubKey, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in.PubKey]; ok {
			continue
		}
		seen[in.PubKey] = struct{}{}
		out = append(out, in.PubKey)
	}
	return out
}
