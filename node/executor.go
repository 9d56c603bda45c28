package node

import (
	"context"

	"github.com/hotpocket/hpcore/execfence"
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hperrors"
)

// fenceExecutor adapts execfence.Fence (which runs against input bodies)
// to consensus.Executor (which the engine drives with input hashes only):
// the consensus loop refreshes bodies once per round, right after draining
// the input pool, before handing the engine its stage1->stage2 transition.
type fenceExecutor struct {
	fence    *execfence.Fence
	identity hpcrypto.Identity

	bodies      map[hash.H32][]byte
	lastOutputs map[hash.H32][]byte
}

// setBodies installs this round's admitted input bodies, keyed by digest.
// Not called concurrently with Execute: both happen on the consensus
// goroutine.
func (f *fenceExecutor) setBodies(bodies map[hash.H32][]byte) {
	f.bodies = bodies
}

// Execute runs the execution fence over the merged input set. A
// hash the local node never admitted (seen only in a peer's merge) means
// this node cannot materialize that input; that is treated
// exactly like any other execution failure: propose without output fields.
func (f *fenceExecutor) Execute(inputHashes []hash.H32) (stateHash, patchHash, outputHash hash.H32, outputSig []byte, ok bool, err error) {
	in := make(map[hash.H32][]byte, len(inputHashes))
	for _, h := range inputHashes {
		body, known := f.bodies[h]
		if !known {
			return hash.Zero, hash.Zero, hash.Zero, nil, false, nil
		}
		in[h] = body
	}

	res, ran, runErr := f.fence.Run(context.Background(), in)
	if runErr != nil && !hperrors.Is(runErr, hperrors.KindExecFailed) {
		return hash.Zero, hash.Zero, hash.Zero, nil, false, runErr
	}
	if !ran {
		return hash.Zero, hash.Zero, hash.Zero, nil, false, nil
	}

	f.lastOutputs = res.Outputs
	sig := f.identity.Sign(res.OutputHash[:])
	return res.StateHash, res.PatchHash, res.OutputHash, sig, true, nil
}
