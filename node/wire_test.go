package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/inputpool"
	"github.com/hotpocket/hpcore/proposal"
)

func TestFrameProposalRoundTrips(t *testing.T) {
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	p := &proposal.Proposal{
		Stage:              proposal.Stage1,
		Time:               1000,
		TimeConfig:         100,
		NodeNonce:          hash.Sum([]byte("nonce")),
		InputOrderedHashes: []hash.H32{hash.Sum([]byte("in"))},
	}
	p.Sign(id, id.Public)

	framed := frameProposal(p)
	require.Equal(t, wireKindProposal, framed[0])

	decoded, err := proposal.Decode(framed[1:])
	require.NoError(t, err)
	require.Equal(t, p.Hash(), decoded.Hash())
}

func TestFrameForwardedInputRoundTrips(t *testing.T) {
	id, err := hpcrypto.Generate()
	require.NoError(t, err)

	in := inputpool.Input{
		PubKey:    id.Public,
		Container: []byte("payload"),
		Protocol:  inputpool.ProtocolJSON,
		Nonce:     7,
	}
	in.Sig = id.Sign(in.Container)

	framed := frameForwardedInput(in)
	require.Equal(t, wireKindInput, framed[0])

	decoded, ok := decodeInput(framed[1:])
	require.True(t, ok)
	require.Equal(t, in.Digest(), decoded.Digest())
	require.Equal(t, in.Nonce, decoded.Nonce)
	require.True(t, inputpool.DefaultVerifier(decoded))
}
