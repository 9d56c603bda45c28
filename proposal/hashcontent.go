package proposal

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
)

// encodeHashContent produces the fixed-order byte framing that is hashed and
// signed: every field of Proposal except PubKey, Sig, and the
// transport-observed wall timestamps (SentTimestamp/RecvTimestamp).
// Implementers elsewhere MUST reproduce this order bit-exactly; changing it
// changes every signature.
func encodeHashContent(p *Proposal) []byte {
	var buf bytes.Buffer

	buf.WriteByte(byte(p.Stage))
	writeUint64(&buf, uint64(p.Time))
	writeUint64(&buf, p.TimeConfig)
	buf.Write(p.NodeNonce[:])
	buf.Write(p.GroupNonce[:])

	for _, u := range sortedPubKeys(p.Users) {
		buf.Write(u[:])
	}
	for _, h := range sortedHashes(p.InputOrderedHashes) {
		buf.Write(h[:])
	}

	buf.Write(p.OutputHash[:])
	buf.Write(p.OutputSig)

	buf.Write(p.StateHash[:])
	buf.Write(p.PatchHash[:])

	writeSeqHash(&buf, p.LastPrimaryShardID)
	writeSeqHash(&buf, p.LastRawShardID)

	return buf.Bytes()
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeSeqHash(buf *bytes.Buffer, sh hash.SeqHash) {
	writeUint64(buf, sh.SeqNo)
	buf.Write(sh.Hash[:])
}

// sortedPubKeys returns a canonically (lexicographically) ordered copy of
// keys, so the merged `users` set hashes identically regardless of the
// order in which distinct peers' proposals were collected.
func sortedPubKeys(keys []hpcrypto.PubKey) []hpcrypto.PubKey {
	out := make([]hpcrypto.PubKey, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// sortedHashes returns a canonically ordered copy of hs.
func sortedHashes(hs []hash.H32) []hash.H32 {
	out := make([]hash.H32, len(hs))
	copy(out, hs)
	hash.Sort(out)
	return out
}
