// Package hash implements the H32 content digest used throughout the
// consensus core as the Merkle/ledger anchor. Digests are 32-byte Blake3
// hashes, total-ordered by lexicographic compare and XOR-combinable for
// nonce/root derivation.
package hash

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// Size is the byte width of an H32 digest.
const Size = 32

// H32 is a 32-byte Blake3 digest. The zero value is the sentinel "empty" hash.
type H32 [Size]byte

// Zero is the sentinel empty hash.
var Zero H32

// Sum returns the Blake3 digest of data.
func Sum(data []byte) H32 {
	var h H32
	sum := blake3.Sum256(data)
	copy(h[:], sum[:])
	return h
}

// SumAll hashes the concatenation of every part, in order, as a single
// message. Callers that need a fixed field order (the proposal and ledger
// hash content) must pass parts pre-ordered.
func SumAll(parts ...[]byte) H32 {
	hasher := blake3.New()
	for _, p := range parts {
		_, _ = hasher.Write(p)
	}
	var h H32
	copy(h[:], hasher.Sum(nil))
	return h
}

// RandomNonce returns a fresh 32-byte random value, used as a node's
// per-round nonce. It never fails: an unreadable entropy source is not a
// condition a validator can run through.
func RandomNonce() H32 {
	var h H32
	if _, err := rand.Read(h[:]); err != nil {
		panic(err)
	}
	return h
}

// IsZero reports whether h is the sentinel empty hash.
func (h H32) IsZero() bool { return h == Zero }

// Compare gives a total order over H32 values by lexicographic byte compare.
func (h H32) Compare(o H32) int { return bytes.Compare(h[:], o[:]) }

// Less reports h < o under Compare, for use as a sort.Interface Less.
func (h H32) Less(o H32) bool { return h.Compare(o) < 0 }

// Xor returns h XOR o, used to combine per-signer node nonces into a round's
// group nonce independent of merge order.
func (h H32) Xor(o H32) H32 {
	var out H32
	for i := range out {
		out[i] = h[i] ^ o[i]
	}
	return out
}

// XorAll XORs a set of hashes together; the result does not depend on
// iteration order.
func XorAll(hs []H32) H32 {
	var out H32
	for _, h := range hs {
		out = out.Xor(h)
	}
	return out
}

// Bytes returns a copy of the digest bytes.
func (h H32) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// String renders the digest as lowercase hex.
func (h H32) String() string { return hex.EncodeToString(h[:]) }

// FromBytes copies b (which must be exactly Size bytes) into an H32.
func FromBytes(b []byte) (H32, bool) {
	var h H32
	if len(b) != Size {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// FromHex parses a hex-encoded digest.
func FromHex(s string) (H32, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, err
	}
	h, ok := FromBytes(b)
	if !ok {
		return Zero, errInvalidLength
	}
	return h, nil
}

// Sort sorts a slice of H32 in place by lexicographic order. Used to derive
// the canonical input_ordered_hashes set — determinism across peers
// is required for consensus.
func Sort(hs []H32) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Less(hs[j]) })
}

var errInvalidLength = invalidLengthError{}

type invalidLengthError struct{}

func (invalidLengthError) Error() string { return "hash: invalid digest length" }
