package unlreg

import "github.com/hotpocket/hpcore/hpcrypto"

// TimeConfigObservation is one proposal's claimed time_config granularity
// from a single UNL signer, as seen in the current observation window.
type TimeConfigObservation struct {
	Signer     hpcrypto.PubKey
	TimeConfig uint64
}

// MajorityTimeConfig picks the UNL-majority time granularity: for each distinct
// time_config value observed in the window, count distinct UNL signers that
// proposed it; return the value held by a strict majority (> half) of the
// UNL, else fall back to localDefault.
func (r *Registry) MajorityTimeConfig(observations []TimeConfigObservation, localDefault uint64) uint64 {
	size := r.Size()
	if size == 0 {
		return localDefault
	}

	seen := map[uint64]map[hpcrypto.PubKey]struct{}{}
	for _, o := range observations {
		if !r.Exists(o.Signer) {
			continue
		}
		signers, ok := seen[o.TimeConfig]
		if !ok {
			signers = map[hpcrypto.PubKey]struct{}{}
			seen[o.TimeConfig] = signers
		}
		signers[o.Signer] = struct{}{}
	}

	half := size / 2
	for value, signers := range seen {
		if len(signers) > half {
			return value
		}
	}
	return localDefault
}
