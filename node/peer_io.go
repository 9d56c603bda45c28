package node

import (
	"context"
	"time"

	"github.com/hotpocket/hpcore/hplog"
	"github.com/hotpocket/hpcore/inputpool"
	"github.com/hotpocket/hpcore/proposal"
)

// peerIOLoop is the node's peer_io thread: one per wire session in a
// real transport, collapsed to one loop here since transport.local
// multiplexes every peer onto a single Link. It dispatches on the wire
// kind tag: proposals are verified and handed to whatever round is
// currently in flight, forwarded user inputs go through the same
// admission path as direct submissions. Unverifiable messages bump the
// sender's bad-message counter rather than being dropped silently, and a
// peer that has crossed the ban threshold is ignored outright until the
// ban is lifted.
func (s *Server) peerIOLoop(ctx context.Context) {
	log := hplog.Component(s.d.Log, "peer_io")

	for {
		msg, err := s.d.Peers.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("peer receive failed")
			continue
		}
		if len(msg.Body) == 0 {
			continue
		}

		switch msg.Body[0] {
		case wireKindProposal:
			s.handlePeerProposal(log, msg.Body[1:], len(msg.Body))
		case wireKindInput:
			s.handleForwardedInput(log, msg.Body[1:])
		default:
			s.d.Diagnostics.BadMessages.WithLabelValues("unknown_kind").Inc()
			log.Debug().Uint8("kind", msg.Body[0]).Msg("unknown peer message kind, dropping")
		}
	}
}

// handlePeerProposal decodes, ban-checks, and verifies one inbound
// proposal, then hands it to the in-flight round.
func (s *Server) handlePeerProposal(log hplog.Logger, body []byte, wireSize int) {
	p, err := proposal.Decode(body)
	if err != nil {
		s.d.Diagnostics.BadMessages.WithLabelValues("undecodable").Inc()
		log.Debug().Err(err).Msg("undecodable proposal, dropping")
		return
	}

	if s.d.Health.IsBanned(p.PubKey) {
		s.d.Diagnostics.BadMessages.WithLabelValues("banned_peer").Inc()
		return
	}

	cfg := s.d.ConfigLive.Current().Patch
	now := time.Now().UnixMilli()
	if !proposal.Verify(p, s.d.UNL, now, int64(cfg.Consensus.RoundTime), wireSize) {
		s.d.Diagnostics.BadMessages.WithLabelValues("bad_proposal").Inc()
		if s.d.Health.RecordBadMessage(p.PubKey, time.Now()) {
			log.Warn().Str("peer", p.PubKey.String()).Msg("peer banned")
		}
		return
	}

	s.touchPeer(p.PubKey)

	if round := s.currentRound(); round != nil {
		round.Receive(p)
	}
}

// handleForwardedInput admits a peer-forwarded user input through the
// same pool path as a direct submission; the pool's signature, replay,
// and quota checks apply unchanged.
func (s *Server) handleForwardedInput(log hplog.Logger, body []byte) {
	in, ok := decodeInput(body)
	if !ok {
		s.d.Diagnostics.BadMessages.WithLabelValues("undecodable").Inc()
		log.Debug().Msg("undecodable forwarded input, dropping")
		return
	}

	s.seqMu.Lock()
	currentSeq := s.nextSeqNo
	s.seqMu.Unlock()

	if err := s.d.Pool.Ingest(in, inputpool.DefaultVerifier, currentSeq); err != nil {
		log.Debug().Err(err).Str("user", in.PubKey.String()).Msg("forwarded input rejected")
	}
}
