package consensus_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/consensus"
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/proposal"
)

func mkProposal(t *testing.T, users []hpcrypto.PubKey, inputs []hash.H32, timeMs int64) *proposal.Proposal {
	t.Helper()
	id, err := hpcrypto.Generate()
	require.NoError(t, err)
	p := &proposal.Proposal{
		Stage:              proposal.Stage0,
		Time:               timeMs,
		NodeNonce:          hash.Sum([]byte(id.Public.String())),
		Users:              users,
		InputOrderedHashes: inputs,
	}
	p.Sign(id, id.Public)
	return p
}

func TestMergeStageIdempotentAcrossOrder(t *testing.T) {
	u1, _ := hpcrypto.Generate()
	u2, _ := hpcrypto.Generate()
	h1 := hash.Sum([]byte("x"))
	h2 := hash.Sum([]byte("y"))

	var proposals []*proposal.Proposal
	for i := 0; i < 4; i++ {
		proposals = append(proposals, mkProposal(t, []hpcrypto.PubKey{u1.Public, u2.Public}, []hash.H32{h1, h2}, int64(1000+i)))
	}

	shuffled := make([]*proposal.Proposal, len(proposals))
	copy(shuffled, proposals)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	m1 := consensus.MergeStage(proposals, 3, consensus.Merged{})
	m2 := consensus.MergeStage(shuffled, 3, consensus.Merged{})

	require.Equal(t, m1.Users, m2.Users)
	require.Equal(t, m1.InputOrderedHashes, m2.InputOrderedHashes)
	require.Equal(t, m1.GroupNonce, m2.GroupNonce)
	require.Equal(t, m1.Time, m2.Time)
}

func TestMergeStageDropsBelowQuorum(t *testing.T) {
	u1, _ := hpcrypto.Generate()
	h1 := hash.Sum([]byte("only-one-signer"))

	proposals := []*proposal.Proposal{
		mkProposal(t, []hpcrypto.PubKey{u1.Public}, []hash.H32{h1}, 1000),
	}

	merged := consensus.MergeStage(proposals, 2, consensus.Merged{})
	require.Empty(t, merged.Users)
	require.Empty(t, merged.InputOrderedHashes)
}

func TestMergeStageCarriesForwardExecutionHashes(t *testing.T) {
	prev := consensus.Merged{
		StateHash: hash.Sum([]byte("state")),
		PatchHash: hash.Sum([]byte("patch")),
	}
	merged := consensus.MergeStage(nil, 1, prev)
	require.Equal(t, prev.StateHash, merged.StateHash)
	require.Equal(t, prev.PatchHash, merged.PatchHash)
}

func TestMedianTimeEvenCountTiesLow(t *testing.T) {
	proposals := []*proposal.Proposal{
		mkProposal(t, nil, nil, 100),
		mkProposal(t, nil, nil, 200),
	}
	merged := consensus.MergeStage(proposals, 1, consensus.Merged{})
	require.EqualValues(t, 100, merged.Time)
}

func TestRoundToGranularityFloors(t *testing.T) {
	require.EqualValues(t, 1000, consensus.RoundToGranularity(1999, 1000))
	require.EqualValues(t, 2000, consensus.RoundToGranularity(2000, 1000))
}
