package node

import (
	"encoding/json"

	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/inputpool"
	"github.com/hotpocket/hpcore/proposal"
)

// Peer messages carry a one-byte kind tag so proposals and forwarded
// user inputs can share the peer channel; peer_io dispatches on it.
const (
	wireKindProposal byte = 0x01
	wireKindInput    byte = 0x02
)

// frameProposal prepends the proposal kind tag to an encoded proposal.
func frameProposal(p *proposal.Proposal) []byte {
	return append([]byte{wireKindProposal}, proposal.Encode(p)...)
}

// frameForwardedInput prepends the input kind tag to an encoded user
// input, for re-broadcasting a non-UNL-observed input to the mesh.
func frameForwardedInput(in inputpool.Input) []byte {
	return append([]byte{wireKindInput}, encodeInput(in)...)
}

// inputEnvelope is the wire framing for a user input submission. The
// transport boundary is a non-goal, so this is a plain JSON envelope
// rather than a real wire codec: good enough to drive user_io against
// transport.local in tests, easy to swap for a real framing once the
// wire protocol is specified.
type inputEnvelope struct {
	PubKey    []byte `json:"pubkey"`
	Container []byte `json:"container"`
	Sig       []byte `json:"sig"`
	Protocol  uint8  `json:"protocol"`
	Nonce     uint64 `json:"nonce"`
}

func encodeInput(in inputpool.Input) []byte {
	b, _ := json.Marshal(inputEnvelope{
		PubKey:    in.PubKey.Bytes(),
		Container: in.Container,
		Sig:       in.Sig,
		Protocol:  uint8(in.Protocol),
		Nonce:     in.Nonce,
	})
	return b
}

func decodeInput(body []byte) (inputpool.Input, bool) {
	var env inputEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return inputpool.Input{}, false
	}
	pub, ok := hpcrypto.PubKeyFromBytes(env.PubKey)
	if !ok {
		return inputpool.Input{}, false
	}
	return inputpool.Input{
		PubKey:    pub,
		Container: env.Container,
		Sig:       env.Sig,
		Protocol:  inputpool.Protocol(env.Protocol),
		Nonce:     env.Nonce,
	}, true
}
