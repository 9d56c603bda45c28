package proposal

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpcrypto"
)

// Encode serializes the full wire representation of p (including PubKey,
// Sig, and the transport timestamps, unlike the hash content). The real
// peer wire format is a length-prefixed flatbuffer and out of scope;
// this length-prefixed binary framing exists so the codec's round-trip
// property is independently testable without the transport layer.
func Encode(p *Proposal) []byte {
	var buf bytes.Buffer

	buf.Write(p.PubKey[:])
	writeBytes(&buf, p.Sig)

	buf.WriteByte(byte(p.Stage))
	writeUint64(&buf, uint64(p.Time))
	writeUint64(&buf, p.TimeConfig)
	buf.Write(p.NodeNonce[:])
	buf.Write(p.GroupNonce[:])

	writeUint32(&buf, uint32(len(p.Users)))
	for _, u := range p.Users {
		buf.Write(u[:])
	}
	writeUint32(&buf, uint32(len(p.InputOrderedHashes)))
	for _, h := range p.InputOrderedHashes {
		buf.Write(h[:])
	}

	buf.Write(p.OutputHash[:])
	writeBytes(&buf, p.OutputSig)

	buf.Write(p.StateHash[:])
	buf.Write(p.PatchHash[:])

	writeSeqHash(&buf, p.LastPrimaryShardID)
	writeSeqHash(&buf, p.LastRawShardID)

	writeUint64(&buf, uint64(p.SentTimestamp))
	writeUint64(&buf, uint64(p.RecvTimestamp))

	return buf.Bytes()
}

// Decode parses the framing Encode produces. FromSelf is never encoded and
// is left at its zero value; callers set it locally after receipt.
func Decode(b []byte) (*Proposal, error) {
	r := bytes.NewReader(b)
	p := &Proposal{}

	if _, err := io.ReadFull(r, p.PubKey[:]); err != nil {
		return nil, err
	}
	sig, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	p.Sig = sig

	stageByte, err := readByte(r)
	if err != nil {
		return nil, err
	}
	p.Stage = Stage(stageByte)

	t, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	p.Time = int64(t)

	tc, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	p.TimeConfig = tc

	if _, err := io.ReadFull(r, p.NodeNonce[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, p.GroupNonce[:]); err != nil {
		return nil, err
	}

	nUsers, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	p.Users = make([]hpcrypto.PubKey, nUsers)
	for i := range p.Users {
		if _, err := io.ReadFull(r, p.Users[i][:]); err != nil {
			return nil, err
		}
	}

	nHashes, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	p.InputOrderedHashes = make([]hash.H32, nHashes)
	for i := range p.InputOrderedHashes {
		if _, err := io.ReadFull(r, p.InputOrderedHashes[i][:]); err != nil {
			return nil, err
		}
	}

	if _, err := io.ReadFull(r, p.OutputHash[:]); err != nil {
		return nil, err
	}
	outSig, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	p.OutputSig = outSig

	if _, err := io.ReadFull(r, p.StateHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, p.PatchHash[:]); err != nil {
		return nil, err
	}

	p.LastPrimaryShardID, err = readSeqHash(r)
	if err != nil {
		return nil, err
	}
	p.LastRawShardID, err = readSeqHash(r)
	if err != nil {
		return nil, err
	}

	sent, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	p.SentTimestamp = int64(sent)

	recv, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	p.RecvTimestamp = int64(recv)

	return p, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readByte(r *bytes.Reader) (byte, error) { return r.ReadByte() }

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readSeqHash(r *bytes.Reader) (hash.SeqHash, error) {
	seq, err := readUint64(r)
	if err != nil {
		return hash.SeqHash{}, err
	}
	var h hash.H32
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return hash.SeqHash{}, err
	}
	return hash.SeqHash{SeqNo: seq, Hash: h}, nil
}
