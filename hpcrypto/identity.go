// Package hpcrypto provides node and user signing identities, backed by
// ed25519 with a base58 display encoding for public keys.
package hpcrypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/jbenet/go-base58"

	"github.com/hotpocket/hpcore/hperrors"
)

// PubKey is a node or user's ed25519 public key.
type PubKey [ed25519.PublicKeySize]byte

// String renders the public key in the base58 encoding used for log lines
// and the CLI.
func (p PubKey) String() string { return base58.Encode(p[:]) }

// Bytes returns the raw key bytes.
func (p PubKey) Bytes() []byte { return p[:] }

// IsZero reports whether p is unset.
func (p PubKey) IsZero() bool { return p == PubKey{} }

// Identity is a node's signing keypair.
type Identity struct {
	Public  PubKey
	private ed25519.PrivateKey
}

// Generate creates a fresh random identity, used by `hotpocket new`/`rekey`.
func Generate() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, hperrors.Fatal("keygen_failed", err)
	}
	var id Identity
	copy(id.Public[:], pub)
	id.private = priv
	return id, nil
}

// FromSeed reconstructs an identity deterministically from a 32-byte seed,
// used when loading a previously generated identity from the node
// directory's id.seed file.
func FromSeed(seed []byte) (Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return Identity{}, hperrors.Fatal("bad_seed_length", nil)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var id Identity
	copy(id.Public[:], priv.Public().(ed25519.PublicKey))
	id.private = priv
	return id, nil
}

// Seed returns the 32-byte seed that reconstructs this identity, for
// persisting to the node directory's id.seed file.
func (id Identity) Seed() []byte {
	return id.private.Seed()
}

// Sign signs payload with the node's private key.
func (id Identity) Sign(payload []byte) []byte {
	return ed25519.Sign(id.private, payload)
}

// Verify checks sig over payload against pub.
func Verify(pub PubKey, payload, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), payload, sig)
}

// PubKeyFromBytes parses a raw public key.
func PubKeyFromBytes(b []byte) (PubKey, bool) {
	var p PubKey
	if len(b) != ed25519.PublicKeySize {
		return p, false
	}
	copy(p[:], b)
	return p, true
}
