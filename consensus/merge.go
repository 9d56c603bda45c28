package consensus

import (
	"sort"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/proposal"
)

// MergeStage is the merged-set construction for one
// stage transition. It is a pure function of the collected proposal
// multiset and is therefore order-independent across peers: iterating proposals in any order
// yields a byte-identical Merged value because every composite field is
// built from a threshold count or a total order, never from arrival order.
//
// prev carries StateHash/PatchHash/OutputHash forward unchanged; the caller overwrites
// them explicitly after execution completes, entering stage 2.
func MergeStage(proposals []*proposal.Proposal, quorum int, prev Merged) Merged {
	m := Merged{
		StateHash:  prev.StateHash,
		PatchHash:  prev.PatchHash,
		OutputHash: prev.OutputHash,
		OutputSig:  prev.OutputSig,
	}

	m.Users = mergeUserSet(userCounts(proposals), quorum)
	m.InputOrderedHashes = mergeHashSet(hashCounts(proposals), quorum)
	hash.Sort(m.InputOrderedHashes)
	sortPubKeys(m.Users)

	// time_config itself does not merge here; that is
	// unlreg.Registry.MajorityTimeConfig's job, evaluated once per round
	// outside the per-stage merge.
	m.TimeConfig = prev.TimeConfig
	m.Time = medianTime(proposals)

	nonces := make([]hash.H32, 0, len(proposals))
	for _, p := range proposals {
		nonces = append(nonces, p.NodeNonce)
	}
	m.GroupNonce = hash.XorAll(nonces)

	return m
}

// userCounts tallies, per distinct pubkey, how many proposals included it.
func userCounts(proposals []*proposal.Proposal) map[hpcrypto.PubKey]int {
	counts := map[hpcrypto.PubKey]int{}
	for _, p := range proposals {
		seen := map[hpcrypto.PubKey]bool{}
		for _, u := range p.Users {
			if seen[u] {
				continue
			}
			seen[u] = true
			counts[u]++
		}
	}
	return counts
}

// hashCounts tallies, per distinct input digest, how many proposals
// included it.
func hashCounts(proposals []*proposal.Proposal) map[hash.H32]int {
	counts := map[hash.H32]int{}
	for _, p := range proposals {
		seen := map[hash.H32]bool{}
		for _, h := range p.InputOrderedHashes {
			if seen[h] {
				continue
			}
			seen[h] = true
			counts[h]++
		}
	}
	return counts
}

// mergeUserSet includes a pubkey iff it appears in at least
// quorum distinct proposals; below-quorum keys are dropped, never
// included.
func mergeUserSet(counts map[hpcrypto.PubKey]int, quorum int) []hpcrypto.PubKey {
	out := make([]hpcrypto.PubKey, 0, len(counts))
	for k, c := range counts {
		if c >= quorum {
			out = append(out, k)
		}
	}
	return out
}

func mergeHashSet(counts map[hash.H32]int, quorum int) []hash.H32 {
	out := make([]hash.H32, 0, len(counts))
	for k, c := range counts {
		if c >= quorum {
			out = append(out, k)
		}
	}
	return out
}

func sortPubKeys(keys []hpcrypto.PubKey) {
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
}

// medianTime takes the median of every proposal's claimed Time; the
// caller rounds it to TimeConfig granularity afterwards. Ties (even
// proposal count) resolve to the numerically lower of the two middle
// values.
func medianTime(proposals []*proposal.Proposal) int64 {
	if len(proposals) == 0 {
		return 0
	}
	times := make([]int64, len(proposals))
	for i, p := range proposals {
		times[i] = p.Time
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	n := len(times)
	if n%2 == 1 {
		return times[n/2]
	}
	// even count: two middle values tie; lower wins.
	return times[n/2-1]
}

// RoundToGranularity floors t down to the nearest multiple of granularity
//.
func RoundToGranularity(t int64, granularity uint64) int64 {
	if granularity == 0 {
		return t
	}
	g := int64(granularity)
	return (t / g) * g
}
