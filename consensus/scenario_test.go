package consensus_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/consensus"
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/proposal"
	"github.com/hotpocket/hpcore/unlreg"
)

// deterministicExecutor simulates the execution fence: the
// post-state is a pure function of the admitted input set, so every honest
// node that executes the same merged input set reaches the same result.
type deterministicExecutor struct{}

func (deterministicExecutor) Execute(inputHashes []hash.H32) (state, patch, output hash.H32, sig []byte, ok bool, err error) {
	sorted := make([]hash.H32, len(inputHashes))
	copy(sorted, inputHashes)
	hash.Sort(sorted)
	var buf []byte
	for _, h := range sorted {
		buf = append(buf, h[:]...)
	}
	return hash.Sum(append(buf, 's')), hash.Sum(append(buf, 'p')), hash.Sum(append(buf, 'o')), nil, true, nil
}

// node bundles the pieces a harness needs to drive one Engine through a round.
type node struct {
	id     hpcrypto.Identity
	engine *consensus.Engine
	round  *consensus.Round
}

// runRound drives validators through all four stages, broadcasting every
// local proposal to the other validators' rounds, and returns each node's
// commit result (nil if it did not reach quorum).
func runRound(t *testing.T, validators []*node, observers []*node, inputHashes []hash.H32, quorum int) map[*node]*consensus.CommitResult {
	t.Helper()
	all := append(append([]*node{}, validators...), observers...)

	nonce := hash.Sum([]byte("round-1"))
	for _, n := range all {
		n.round, _ = n.engine.BeginRound(1, 1000, 100, nonce, nil, inputHashes, hash.SeqHash{}, hash.SeqHash{})
	}

	broadcast := func(from *node, p *proposal.Proposal) {
		for _, n := range all {
			if n == from {
				continue
			}
			n.round.Receive(p)
		}
	}

	// stage0 proposals already created by BeginRound; broadcast them.
	for _, n := range validators {
		broadcast(n, n.round.StageProposals(proposal.Stage0)[indexOfSelf(n)])
	}

	advance := func(from, to proposal.Stage) {
		for _, n := range validators {
			p, err := n.engine.AdvanceToStage(n.round, from, to, 1000)
			require.NoError(t, err)
			broadcast(n, p)
		}
	}

	advance(proposal.Stage0, proposal.Stage1)
	advance(proposal.Stage1, proposal.Stage2)
	advance(proposal.Stage2, proposal.Stage3)

	results := map[*node]*consensus.CommitResult{}
	for _, n := range all {
		stage3 := n.round.StageProposals(proposal.Stage3)
		result, ok := consensus.TryCommit(stage3, quorum)
		if ok {
			results[n] = result
		} else {
			results[n] = nil
		}
	}
	return results
}

// indexOfSelf finds the proposal this node signed among its own stage-0
// collection (there is exactly one, its own, right after BeginRound).
func indexOfSelf(n *node) int {
	props := n.round.StageProposals(proposal.Stage0)
	for i, p := range props {
		if p.PubKey == n.id.Public {
			return i
		}
	}
	return 0
}

func TestThreeNodeHappyPath(t *testing.T) {
	a := mustID(t)
	b := mustID(t)
	c := mustID(t)
	unl := unlreg.New([]hpcrypto.PubKey{a.Public, b.Public, c.Public}, 67)

	na := &node{id: a, engine: consensus.NewEngine(a, unl, deterministicExecutor{})}
	nb := &node{id: b, engine: consensus.NewEngine(b, unl, deterministicExecutor{})}
	nc := &node{id: c, engine: consensus.NewEngine(c, unl, deterministicExecutor{})}

	hi := hash.Sum([]byte("hi"))
	results := runRound(t, []*node{na, nb, nc}, nil, []hash.H32{hi}, unl.Quorum())

	require.NotNil(t, results[na])
	require.NotNil(t, results[nb])
	require.NotNil(t, results[nc])
	require.Equal(t, results[na].StateHash, results[nb].StateHash)
	require.Equal(t, results[nb].StateHash, results[nc].StateHash)
	require.Contains(t, results[na].InputHashes, hi)
}

func TestObserverContributesNoProposalsButLedgerAdvances(t *testing.T) {
	a := mustID(t)
	b := mustID(t)
	c := mustID(t) // observer: not a UNL member; the UNL is {a, b}
	unl := unlreg.New([]hpcrypto.PubKey{a.Public, b.Public}, 67)

	na := &node{id: a, engine: consensus.NewEngine(a, unl, deterministicExecutor{})}
	nb := &node{id: b, engine: consensus.NewEngine(b, unl, deterministicExecutor{})}
	nc := &node{id: c, engine: consensus.NewEngine(c, unl, deterministicExecutor{})}

	hi := hash.Sum([]byte("hi"))
	// c is passed only as an observer: runRound never calls AdvanceToStage
	// for it, so it contributes no stage1/2/3 proposals of its own.
	results := runRound(t, []*node{na, nb}, []*node{nc}, []hash.H32{hi}, unl.Quorum())

	require.NotNil(t, results[na])
	require.NotNil(t, results[nb])
	require.Equal(t, results[na].StateHash, results[nb].StateHash)
	require.NotNil(t, results[nc])

	cStage3 := nc.round.StageProposals(proposal.Stage3)
	for _, p := range cStage3 {
		require.NotEqual(t, c.Public, p.PubKey)
	}
}

func TestByzantineSplitYieldsEmptyMergedSet(t *testing.T) {
	a := mustID(t)
	b := mustID(t)
	c := mustID(t)
	unl := unlreg.New([]hpcrypto.PubKey{a.Public, b.Public, c.Public}, 67)

	na := &node{id: a, engine: consensus.NewEngine(a, unl, deterministicExecutor{})}
	nb := &node{id: b, engine: consensus.NewEngine(b, unl, deterministicExecutor{})}
	nc := &node{id: c, engine: consensus.NewEngine(c, unl, deterministicExecutor{})}

	x := hash.Sum([]byte("x"))
	y := hash.Sum([]byte("y"))

	all := []*node{na, nb, nc}
	nonce := hash.Sum([]byte("round-1"))
	inputsFor := map[*node][]hash.H32{na: {x}, nb: {y}, nc: nil}
	for _, n := range all {
		n.round, _ = n.engine.BeginRound(1, 1000, 100, nonce, nil, inputsFor[n], hash.SeqHash{}, hash.SeqHash{})
	}
	broadcast := func(from *node, p *proposal.Proposal) {
		for _, n := range all {
			if n != from {
				n.round.Receive(p)
			}
		}
	}
	for _, n := range all {
		broadcast(n, n.round.StageProposals(proposal.Stage0)[indexOfSelf(n)])
	}

	advance := func(from, to proposal.Stage) {
		for _, n := range all {
			p, err := n.engine.AdvanceToStage(n.round, from, to, 1000)
			require.NoError(t, err)
			broadcast(n, p)
		}
	}
	advance(proposal.Stage0, proposal.Stage1)
	advance(proposal.Stage1, proposal.Stage2)
	advance(proposal.Stage2, proposal.Stage3)

	result, ok := consensus.TryCommit(na.round.StageProposals(proposal.Stage3), unl.Quorum())
	require.True(t, ok)
	require.Empty(t, result.InputHashes)
	require.Equal(t, hash.Sum([]byte{'s'}), result.StateHash)
}

func mustID(t *testing.T) hpcrypto.Identity {
	t.Helper()
	id, err := hpcrypto.Generate()
	require.NoError(t, err)
	return id
}
