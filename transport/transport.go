// Package transport defines the peer/user wire interfaces the consensus
// core depends on. The authenticated peer protocol and real
// TLS/WebSocket transport remain non-goals; this package only
// specifies the shape a concrete transport must satisfy, plus (in the
// `local` subpackage) an in-process adapter so the core is testable
// without one.
package transport

import (
	"context"

	"github.com/hotpocket/hpcore/hpcrypto"
)

// Message is one framed unit on the wire: a proposal, an input, or a
// sync request/response, already serialized by the caller.
type Message struct {
	From hpcrypto.PubKey
	Body []byte
}

// PeerChannel is the node-to-node channel used for proposal gossip and
// state/log sync traffic.
type PeerChannel interface {
	// Send delivers body to the peer identified by to. Context-cancellable:
	// the shutdown flag is checked at every blocking-call boundary.
	Send(ctx context.Context, to hpcrypto.PubKey, body []byte) error
	// Broadcast delivers body to every UNL peer.
	Broadcast(ctx context.Context, body []byte) error
	// Receive blocks until a message arrives or ctx is done.
	Receive(ctx context.Context) (Message, error)
}

// UserChannel is the end-user-facing channel used for input submission
// and output delivery.
type UserChannel interface {
	Receive(ctx context.Context) (Message, error)
	Send(ctx context.Context, to hpcrypto.PubKey, body []byte) error
}
