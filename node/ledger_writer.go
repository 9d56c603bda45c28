package node

import (
	"context"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hplog"
	"github.com/hotpocket/hpcore/inputpool"
)

// ledgerWriterLoop is the node's ledger_writer thread: the single
// producer against the ledger DB. The consensus goroutine blocks on this
// loop's completion of one commit before starting the next round,
// which the buffered, capacity-1 s.commits channel plus the consensus
// loop's synchronous send already enforces: the next round cannot begin
// building a new commitJob until this loop has drained the previous one.
func (s *Server) ledgerWriterLoop(ctx context.Context) {
	log := hplog.Component(s.d.Log, "ledger_writer")

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.commits:
			s.writeCommit(log, job)
		}
	}
}

// writeCommit appends the round's ledger record and, on success,
// advances the parent hashes. It does not touch the vfs: the RW session
// the execution fence left acquired is neither promoted nor released
// here. Every round attempt, committed or aborted, also
// extends the raw chain, so last_raw_shard_id keeps moving through
// rounds the primary shard never records. On a builder failure the
// caller must state-sync rather than silently skip a sequence number, so
// this loop logs and leaves the round's effects uncommitted; the
// consensus loop already advanced nextSeqNo optimistically on TryCommit
// success, so the failure is surfaced for operator attention rather than
// retried in-process.
func (s *Server) writeCommit(log hplog.Logger, job commitJob) {
	rlog := hplog.ForRound(log, job.seqNo)

	lastPrimary, lastRaw := s.parents()

	rawHash, err := s.d.Ledger.AppendRaw(job.seqNo, job.nowMs, lastRaw.Hash, !job.aborted)
	if err != nil {
		rlog.Error().Err(err).Msg("raw chain append failed")
		return
	}
	lastRaw = hash.SeqHash{SeqNo: job.seqNo, Hash: rawHash}

	if job.aborted {
		s.setParents(lastPrimary, lastRaw)
		return
	}

	record, err := s.d.Ledger.Commit(job.seqNo, job.nowMs, job.nonce, job.result, job.inputs2Bodies(), job.outputs)
	if err != nil {
		s.setParents(lastPrimary, lastRaw)
		rlog.Error().Err(err).Msg("ledger commit failed; state-sync required")
		return
	}

	s.setParents(hash.SeqHash{SeqNo: record.SeqNo, Hash: record.LedgerHash}, lastRaw)
	s.d.Pool.MarkAdmitted(job.committedInputs(), record.SeqNo)

	if job.contributed {
		rlog.Info().Str("ledger_hash", record.LedgerHash.String()).Msg("ledger record committed")
	} else {
		rlog.Warn().Str("ledger_hash", record.LedgerHash.String()).Msg("ledger record committed without local execution result")
	}
}

// committedInputs filters the locally-drained inputs down to the ones the
// quorum actually admitted, so the replay window only closes for
// (pubkey, nonce) pairs a ledger row exists for.
func (j commitJob) committedInputs() []inputpool.Input {
	want := make(map[hash.H32]struct{}, len(j.result.InputHashes))
	for _, h := range j.result.InputHashes {
		want[h] = struct{}{}
	}
	out := make([]inputpool.Input, 0, len(j.inputs))
	for _, in := range j.inputs {
		if _, ok := want[in.Digest()]; ok {
			out = append(out, in)
		}
	}
	return out
}

// inputs2Bodies keys the round's admitted inputs by their content digest, the
// shape ledger.Builder.Commit expects for writing raw blob entries.
func (j commitJob) inputs2Bodies() map[hash.H32][]byte {
	out := make(map[hash.H32][]byte, len(j.inputs))
	for _, in := range j.inputs {
		out[in.Digest()] = in.Container
	}
	return out
}
