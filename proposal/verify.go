package proposal

import (
	"github.com/hotpocket/hpcore/hpcrypto"
)

// oneMiB is the message-size threshold above which the staleness check
// is skipped.
const oneMiB = 1 << 20

// UNLChecker reports whether a pubkey is a current UNL member. Satisfied by
// *unlreg.Registry; kept as a narrow interface here so this package does not
// depend on unlreg.
type UNLChecker interface {
	Exists(pk hpcrypto.PubKey) bool
}

// Verify checks the acceptance invariant: the signature verifies, the signer
// is a current UNL member, and (for messages no larger than 1 MiB) the
// proposal's claimed time is within 3*roundtime of now. approxSize is the
// wire-encoded size of the proposal as observed by the transport layer.
func Verify(p *Proposal, unl UNLChecker, nowMs int64, roundtimeMs int64, approxSize int) bool {
	if !unl.Exists(p.PubKey) {
		return false
	}
	h := p.Hash()
	if !hpcrypto.Verify(p.PubKey, h[:], p.Sig) {
		return false
	}
	if approxSize <= oneMiB {
		age := nowMs - p.Time
		if age < 0 {
			age = -age
		}
		if age > 3*roundtimeMs {
			return false
		}
	}
	return true
}
