// Package inputpool implements the input pool: dedup/ordering of
// user inputs and per-round admission caps. Producers enqueue under a
// lock, the stage engine drains the whole queue under the same lock and
// processes it unlocked, for batch locality without holding the lock across
// verification work.
package inputpool

import (
	"sync"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
)

// Protocol is the framing of a user input's container payload.
type Protocol uint8

const (
	ProtocolJSON Protocol = iota
	ProtocolBSON
)

// Input is a single user-submitted input.
type Input struct {
	PubKey    hpcrypto.PubKey
	Container []byte
	Sig       []byte
	Protocol  Protocol
	Nonce     uint64
}

// Digest is Blake3(container), the canonical identity used for ordering and
// the ledger's inputs table.
func (in Input) Digest() hash.H32 { return hash.Sum(in.Container) }

// key is the input uniqueness key: (pubkey, nonce).
type key struct {
	pub   hpcrypto.PubKey
	nonce uint64
}

// Pool holds candidate inputs for the round in progress plus the sliding
// replay window across recent ledgers.
type Pool struct {
	mu sync.Mutex

	// pending is this round's admitted inputs, keyed by digest to dedup
	// identical submissions.
	pending map[hash.H32]Input
	bytes   int

	// admittedAt records the highest ledger seq_no at which (pubkey,nonce)
	// was last admitted, for the sliding replay window.
	admittedAt map[key]uint64

	maxInputLedgerOffset uint64
	maxBytesPerRound     int
}

// New builds an empty pool. maxInputLedgerOffset is the replay window width
// in ledgers; maxBytesPerRound bounds total admitted bytes per round
// (round_limits.user_input_bytes).
func New(maxInputLedgerOffset uint64, maxBytesPerRound int) *Pool {
	return &Pool{
		pending:              make(map[hash.H32]Input),
		admittedAt:           make(map[key]uint64),
		maxInputLedgerOffset: maxInputLedgerOffset,
		maxBytesPerRound:     maxBytesPerRound,
	}
}

// Verifier checks a user input's signature against its claimed pubkey.
type Verifier func(in Input) bool

// DefaultVerifier verifies Sig over Container using ed25519.
func DefaultVerifier(in Input) bool {
	return hpcrypto.Verify(in.PubKey, in.Container, in.Sig)
}

// ErrReason classifies why Ingest rejected an input.
type ErrReason string

const (
	ErrBadSignature  ErrReason = "bad_signature"
	ErrReplay        ErrReason = "replay"
	ErrQuotaExceeded ErrReason = "quota_exceeded"
)

// RejectError reports a rejection reason without being a fatal error: these are transient, peer-sourced conditions.
type RejectError struct{ Reason ErrReason }

func (e *RejectError) Error() string { return string(e.Reason) }

// Ingest verifies and admits a user input into the current round's
// candidate set, enforcing the replay window and the per-round byte cap.
// currentLedgerSeq is the ledger seq_no the new round will produce.
func (p *Pool) Ingest(in Input, verify Verifier, currentLedgerSeq uint64) error {
	if !verify(in) {
		return &RejectError{Reason: ErrBadSignature}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	k := key{pub: in.PubKey, nonce: in.Nonce}
	if lastSeq, ok := p.admittedAt[k]; ok {
		if currentLedgerSeq <= lastSeq+p.maxInputLedgerOffset {
			return &RejectError{Reason: ErrReplay}
		}
	}

	if p.bytes+len(in.Container) > p.maxBytesPerRound {
		return &RejectError{Reason: ErrQuotaExceeded}
	}

	digest := in.Digest()
	if _, exists := p.pending[digest]; exists {
		return nil // already admitted this round, not an error
	}

	p.pending[digest] = in
	p.bytes += len(in.Container)
	return nil
}

// Drain removes and returns every pending input, splicing the pool's
// internal map out under the lock and releasing it before the caller
// processes the batch.
func (p *Pool) Drain() []Input {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[hash.H32]Input)
	p.bytes = 0
	p.mu.Unlock()

	out := make([]Input, 0, len(pending))
	for _, in := range pending {
		out = append(out, in)
	}
	return out
}

// OrderedHashes returns the canonical input_ordered_hashes for a batch of
// inputs: their digests, sorted.
func OrderedHashes(inputs []Input) []hash.H32 {
	out := make([]hash.H32, len(inputs))
	for i, in := range inputs {
		out[i] = in.Digest()
	}
	hash.Sort(out)
	return out
}

// MarkAdmitted records that the inputs in a committed round's input set were
// admitted at ledgerSeq, closing the replay window for their (pubkey,nonce)
// keys going forward.
func (p *Pool) MarkAdmitted(inputs []Input, ledgerSeq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, in := range inputs {
		p.admittedAt[key{pub: in.PubKey, nonce: in.Nonce}] = ledgerSeq
	}
}
