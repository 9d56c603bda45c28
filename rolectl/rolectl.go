// Package rolectl implements the role controller: a node starts as
// either OBSERVER (never proposes) or VALIDATOR (proposes), and a
// validator that stops contributing to quorum or falls too far behind the
// UNL self-demotes to observer.
package rolectl

// Role is a node's current participation level.
type Role uint8

const (
	// Observer never emits stage proposals.
	Observer Role = iota
	// Validator emits stage proposals and can commit.
	Validator
)

func (r Role) String() string {
	if r == Validator {
		return "validator"
	}
	return "observer"
}

// Controller tracks one node's role across rounds. startedObserver
// is fixed at construction: a node that started as OBSERVER never
// promotes.
type Controller struct {
	role              Role
	startedObserver   bool
	consecutiveMisses int

	// DemoteAfterMisses is N: the number of consecutive rounds a
	// validator can fail to contribute to quorum before self-demoting.
	DemoteAfterMisses int
	// DemoteAfterLagThreshold is the max seq_no gap behind the UNL's
	// ledger before a validator self-demotes.
	DemoteAfterLagThreshold uint64
}

// New builds a Controller with the node's starting role.
func New(initial Role, demoteAfterMisses int, demoteAfterLag uint64) *Controller {
	return &Controller{
		role:                    initial,
		startedObserver:         initial == Observer,
		DemoteAfterMisses:       demoteAfterMisses,
		DemoteAfterLagThreshold: demoteAfterLag,
	}
}

// Role returns the node's current role.
func (c *Controller) Role() Role { return c.role }

// RecordRoundOutcome updates demotion state after one round: contributed
// is whether this node's proposal was part of the quorum group that
// committed; localSeqNo/unlSeqNo let the controller check the lag
// threshold even when contributed is true (a validator can contribute to
// a round and still be behind on ledger replay in a full-history setup).
func (c *Controller) RecordRoundOutcome(contributed bool, localSeqNo, unlSeqNo uint64) {
	if c.role != Validator {
		return
	}

	if contributed {
		c.consecutiveMisses = 0
	} else {
		c.consecutiveMisses++
	}

	behindBy := uint64(0)
	if unlSeqNo > localSeqNo {
		behindBy = unlSeqNo - localSeqNo
	}

	if c.consecutiveMisses >= c.DemoteAfterMisses || behindBy > c.DemoteAfterLagThreshold {
		c.role = Observer
	}
}

// TryPromote re-promotes a demoted validator once its vfs root matches
// the UNL-agreed root and it has caught up. A node that started
// as OBSERVER never promotes, regardless of these conditions.
func (c *Controller) TryPromote(localRootMatchesUNL bool, caughtUp bool) {
	if c.startedObserver {
		return
	}
	if c.role == Validator {
		return
	}
	if localRootMatchesUNL && caughtUp {
		c.role = Validator
		c.consecutiveMisses = 0
	}
}
