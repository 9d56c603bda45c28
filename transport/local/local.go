// Package local provides an in-process transport.PeerChannel/UserChannel
// pair backed by watermill's gochannel pub/sub, for single-process clusters
// and tests. The real authenticated wire transport plugs in behind the
// same interfaces.
package local

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hperrors"
	"github.com/hotpocket/hpcore/transport"
)

const broadcastTopic = "hotpocket.broadcast"

// Hub is a process-local message bus shared by every simulated node in a
// test; each node gets its own Link bound to its pubkey's unicast topic
// plus the shared broadcast topic.
type Hub struct {
	pubsub *gochannel.GoChannel
}

// NewHub creates an empty bus.
func NewHub() *Hub {
	return &Hub{pubsub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})}
}

func unicastTopic(id hpcrypto.PubKey) string {
	return fmt.Sprintf("hotpocket.peer.%s", id.String())
}

// Link implements both transport.PeerChannel and transport.UserChannel
// over the Hub, scoped to one node's pubkey.
type Link struct {
	hub  *Hub
	self hpcrypto.PubKey
	sub  <-chan *message.Message
}

var _ transport.PeerChannel = (*Link)(nil)
var _ transport.UserChannel = (*Link)(nil)

// Join subscribes self to its unicast topic and the shared broadcast
// topic, merging both into one inbound stream.
func (h *Hub) Join(ctx context.Context, self hpcrypto.PubKey) (*Link, error) {
	unicast, err := h.pubsub.Subscribe(ctx, unicastTopic(self))
	if err != nil {
		return nil, hperrors.Fatal("local_transport_subscribe_failed", err)
	}
	broadcast, err := h.pubsub.Subscribe(ctx, broadcastTopic)
	if err != nil {
		return nil, hperrors.Fatal("local_transport_subscribe_failed", err)
	}

	merged := make(chan *message.Message)
	go forward(ctx, unicast, merged)
	go forward(ctx, broadcast, merged)

	return &Link{hub: h, self: self, sub: merged}, nil
}

func forward(ctx context.Context, in <-chan *message.Message, out chan<- *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- m:
				m.Ack()
			case <-ctx.Done():
				return
			}
		}
	}
}

// Send publishes body on to's unicast topic.
func (l *Link) Send(ctx context.Context, to hpcrypto.PubKey, body []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("from", l.self.String())
	if err := l.hub.pubsub.Publish(unicastTopic(to), msg); err != nil {
		return hperrors.Transient("local_transport_publish_failed", err)
	}
	return nil
}

// Broadcast publishes body on the shared broadcast topic.
func (l *Link) Broadcast(ctx context.Context, body []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("from", l.self.String())
	if err := l.hub.pubsub.Publish(broadcastTopic, msg); err != nil {
		return hperrors.Transient("local_transport_publish_failed", err)
	}
	return nil
}

// Receive blocks for the next inbound message addressed to this link,
// either unicast or broadcast.
func (l *Link) Receive(ctx context.Context) (transport.Message, error) {
	select {
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	case m, ok := <-l.sub:
		if !ok {
			return transport.Message{}, hperrors.Fatal("local_transport_closed", nil)
		}
		return transport.Message{Body: m.Payload}, nil
	}
}

// Close releases the Hub's pub/sub resources.
func (h *Hub) Close() error {
	return h.pubsub.Close()
}
