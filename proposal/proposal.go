// Package proposal implements the proposal value type and its hash/sign/verify
// codec. A fixed field order is hashed, never the Go struct layout, so
// the wire format and the hashed content can evolve independently.
package proposal

import (
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
)

// Stage is one of the four consensus sub-phases.
type Stage uint8

const (
	Stage0 Stage = iota
	Stage1
	Stage2
	Stage3
)

// Proposal is the immutable value a UNL signer broadcasts each stage.
type Proposal struct {
	PubKey hpcrypto.PubKey
	Sig    []byte

	Stage      Stage
	Time       int64 // proposer's wall-ms
	TimeConfig uint64

	NodeNonce  hash.H32
	GroupNonce hash.H32

	Users              []hpcrypto.PubKey
	InputOrderedHashes []hash.H32

	OutputHash hash.H32
	OutputSig  []byte

	StateHash hash.H32
	PatchHash hash.H32

	LastPrimaryShardID hash.SeqHash
	LastRawShardID     hash.SeqHash

	// SentTimestamp/RecvTimestamp are transport-observed wall times,
	// carried by Encode/Decode and excluded from the signed hash content.
	// The node's peer_io path does not set them.
	SentTimestamp int64
	RecvTimestamp int64

	// FromSelf is derived locally, never transmitted.
	FromSelf bool
}

// Hash returns the Blake3 digest of the fixed-order hash content.
func (p *Proposal) Hash() hash.H32 {
	return hash.Sum(encodeHashContent(p))
}

// Sign signs the proposal's hash with id and sets PubKey/Sig.
func (p *Proposal) Sign(id hpcrypto.Identity, pub hpcrypto.PubKey) {
	p.PubKey = pub
	h := p.Hash()
	p.Sig = id.Sign(h[:])
}
