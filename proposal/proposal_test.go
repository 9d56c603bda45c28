package proposal_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/proposal"
)

func newSigned(t *testing.T) (*proposal.Proposal, hpcrypto.Identity) {
	t.Helper()
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	p := &proposal.Proposal{
		Stage:              proposal.Stage1,
		Time:               1000,
		TimeConfig:         100,
		NodeNonce:          hash.Sum([]byte("nonce")),
		Users:              []hpcrypto.PubKey{id.Public},
		InputOrderedHashes: []hash.H32{hash.Sum([]byte("input"))},
	}
	p.Sign(id, id.Public)
	return p, id
}

type staticUNL struct{ members map[hpcrypto.PubKey]bool }

func (u staticUNL) Exists(pk hpcrypto.PubKey) bool { return u.members[pk] }

func TestVerifyAcceptsValidProposal(t *testing.T) {
	p, id := newSigned(t)
	unl := staticUNL{members: map[hpcrypto.PubKey]bool{id.Public: true}}

	require.True(t, proposal.Verify(p, unl, 1000, 1000, 256))
}

func TestVerifyRejectsNonUNLSigner(t *testing.T) {
	p, _ := newSigned(t)
	unl := staticUNL{members: map[hpcrypto.PubKey]bool{}}

	require.False(t, proposal.Verify(p, unl, 1000, 1000, 256))
}

func TestVerifyRejectsTamperedField(t *testing.T) {
	p, id := newSigned(t)
	unl := staticUNL{members: map[hpcrypto.PubKey]bool{id.Public: true}}

	p.TimeConfig = 999 // mutate after signing
	require.False(t, proposal.Verify(p, unl, 1000, 1000, 256))
}

func TestVerifyStalenessSkippedAboveOneMiB(t *testing.T) {
	p, id := newSigned(t)
	unl := staticUNL{members: map[hpcrypto.PubKey]bool{id.Public: true}}

	// created_on is wildly stale, but message size > 1MiB skips the check.
	require.True(t, proposal.Verify(p, unl, 10_000_000, 1000, (1<<20)+1))
}

func TestVerifyRejectsStaleSmallMessage(t *testing.T) {
	p, id := newSigned(t)
	unl := staticUNL{members: map[hpcrypto.PubKey]bool{id.Public: true}}

	require.False(t, proposal.Verify(p, unl, 10_000_000, 1000, 256))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p, _ := newSigned(t)
	p.SentTimestamp = 42
	p.RecvTimestamp = 43

	encoded := proposal.Encode(p)
	decoded, err := proposal.Decode(encoded)
	require.NoError(t, err)

	reencoded := proposal.Encode(decoded)
	require.Equal(t, encoded, reencoded)
	require.Equal(t, p.Hash(), decoded.Hash())
}
