// Package unlreg implements the Unique Node List registry: the
// trusted-signer set and its quorum/threshold arithmetic. Membership is an
// immutable set swapped wholesale on change, so concurrent readers never
// observe a partially-applied UNL patch.
package unlreg

import (
	"math"
	"sync/atomic"

	"github.com/hotpocket/hpcore/hpcrypto"
)

// snapshot is the immutable UNL state swapped atomically on patch apply.
type snapshot struct {
	members   map[hpcrypto.PubKey]struct{}
	threshold int // percent, 1..100
}

// Registry is the process-wide UNL, reloadable only between rounds.
type Registry struct {
	current atomic.Value // holds *snapshot
}

// New builds a Registry from an initial member set and threshold percent.
func New(members []hpcrypto.PubKey, thresholdPercent int) *Registry {
	r := &Registry{}
	r.store(members, thresholdPercent)
	return r
}

func (r *Registry) store(members []hpcrypto.PubKey, thresholdPercent int) {
	set := make(map[hpcrypto.PubKey]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	r.current.Store(&snapshot{members: set, threshold: thresholdPercent})
}

func (r *Registry) load() *snapshot {
	return r.current.Load().(*snapshot)
}

// Exists reports whether pk is a member of the current UNL.
func (r *Registry) Exists(pk hpcrypto.PubKey) bool {
	_, ok := r.load().members[pk]
	return ok
}

// Size returns the current UNL member count.
func (r *Registry) Size() int {
	return len(r.load().members)
}

// Members returns a snapshot copy of the current UNL member set.
func (r *Registry) Members() []hpcrypto.PubKey {
	s := r.load()
	out := make([]hpcrypto.PubKey, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	return out
}

// Quorum returns ceil(|UNL| * threshold% / 100).
func (r *Registry) Quorum() int {
	s := r.load()
	return Quorum(len(s.members), s.threshold)
}

// Quorum computes ceil(n*thresholdPercent/100) for an arbitrary UNL size and
// threshold, exposed standalone so callers can evaluate it against a
// candidate membership before applying a patch.
func Quorum(n, thresholdPercent int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(float64(n) * float64(thresholdPercent) / 100.0))
}

// ThresholdPercent returns the currently configured threshold percent.
func (r *Registry) ThresholdPercent() int {
	return r.load().threshold
}

// ApplyPatch replaces the UNL membership and/or threshold. This
// must only be called between rounds, once the patch file's hash has won
// consensus.
func (r *Registry) ApplyPatch(members []hpcrypto.PubKey, thresholdPercent int) {
	r.store(members, thresholdPercent)
}
