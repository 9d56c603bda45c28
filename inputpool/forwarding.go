package inputpool

// NonUnlProposal is re-broadcast for an input observed from a peer that is
// not itself UNL-visible to us, so the rest of the mesh can still admit
// it.
type NonUnlProposal struct {
	Input    Input
	FromPeer []byte // opaque peer identity as observed by transport
}

// Forward builds the re-broadcast message for in when required is true
// (the node passes its Deps.ForwardInputs setting).
func Forward(in Input, fromPeer []byte, required bool) (NonUnlProposal, bool) {
	if !required {
		return NonUnlProposal{}, false
	}
	return NonUnlProposal{Input: in, FromPeer: fromPeer}, true
}
