package node

import (
	"context"

	"github.com/hotpocket/hpcore/hplog"
	"github.com/hotpocket/hpcore/inputpool"
)

// userIOLoop is the node's user_io thread: decodes submitted user
// inputs off the user wire channel and admits them into the input
// pool. Rejections (bad signature, replay, quota) are peer-sourced and
// transient, so they are logged and dropped rather than treated as a
// local fault. Admitted inputs are re-broadcast to the peer mesh when
// forwarding is required, so an input observed only by a non-UNL node
// still reaches the validators.
func (s *Server) userIOLoop(ctx context.Context) {
	log := hplog.Component(s.d.Log, "user_io")

	for {
		msg, err := s.d.Users.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("user receive failed")
			continue
		}

		in, ok := decodeInput(msg.Body)
		if !ok {
			log.Debug().Msg("undecodable input, dropping")
			continue
		}

		s.seqMu.Lock()
		currentSeq := s.nextSeqNo
		s.seqMu.Unlock()

		if err := s.d.Pool.Ingest(in, inputpool.DefaultVerifier, currentSeq); err != nil {
			log.Debug().Err(err).Str("user", in.PubKey.String()).Msg("input rejected")
			continue
		}

		if fwd, ok := inputpool.Forward(in, s.d.Identity.Public.Bytes(), s.d.ForwardInputs); ok {
			_ = s.d.Peers.Broadcast(ctx, frameForwardedInput(fwd.Input))
		}
	}
}
