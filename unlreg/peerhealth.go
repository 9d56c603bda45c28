package unlreg

import (
	"sync"
	"time"

	"github.com/hotpocket/hpcore/hpcrypto"
)

// PeerHealth tracks transient bad-message counts per peer on a sliding
// one-minute window and bans a peer once it crosses maxBadMsgsPerMin.
type PeerHealth struct {
	mu               sync.Mutex
	maxBadMsgsPerMin int
	window           time.Duration
	events           map[hpcrypto.PubKey][]time.Time
	banned           map[hpcrypto.PubKey]bool
}

// NewPeerHealth builds a tracker with the given per-minute threshold.
func NewPeerHealth(maxBadMsgsPerMin int) *PeerHealth {
	return &PeerHealth{
		maxBadMsgsPerMin: maxBadMsgsPerMin,
		window:           time.Minute,
		events:           map[hpcrypto.PubKey][]time.Time{},
		banned:           map[hpcrypto.PubKey]bool{},
	}
}

// RecordBadMessage registers one transient error from peer at now and
// reports whether the peer is now (or was already) banned.
func (h *PeerHealth) RecordBadMessage(peer hpcrypto.PubKey, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.banned[peer] {
		return true
	}

	cutoff := now.Add(-h.window)
	events := h.events[peer]
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	h.events[peer] = kept

	if len(kept) >= h.maxBadMsgsPerMin {
		h.banned[peer] = true
		return true
	}
	return false
}

// IsBanned reports whether peer is currently banned.
func (h *PeerHealth) IsBanned(peer hpcrypto.PubKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.banned[peer]
}

// Unban clears a peer's ban and history, used when the UNL is patched to
// re-admit a previously-banned member.
func (h *PeerHealth) Unban(peer hpcrypto.PubKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.banned, peer)
	delete(h.events, peer)
}
