package ledger

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hperrors"
)

// RawShard is the append-only blob file backing one primary shard's input
// and output bodies (referenced from the
// `inputs`/`outputs` tables by (offset, size)), plus the raw record
// chain: a small hash-chained header appended once per round attempt,
// committed or not, so a proposal's last_raw_shard_id advances even
// through rounds the primary shard never sees.
type RawShard struct {
	mu   sync.Mutex
	file *os.File
	size int64
}

// OpenRawShard opens (creating if absent) the raw blob file at path.
func OpenRawShard(path string) (*RawShard, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, hperrors.Fatal("raw_shard_open_failed", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, hperrors.Fatal("raw_shard_stat_failed", err)
	}
	return &RawShard{file: f, size: info.Size()}, nil
}

// Append writes body at the current end of the file and returns its
// (offset, size) for storage in an InputRef/OutputRef.
func (r *RawShard) Append(body []byte) (offset int64, size int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.WriteAt(body, r.size)
	if err != nil {
		return 0, 0, hperrors.Fatal("raw_shard_write_failed", err)
	}
	offset = r.size
	size = int64(n)
	r.size += size
	return offset, size, nil
}

// ReadAt returns the body stored at (offset, size).
func (r *RawShard) ReadAt(offset, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return nil, hperrors.Fatal("raw_shard_read_failed", err)
	}
	return buf, nil
}

// AppendRecord appends one raw chain record for a round attempt at seqNo
// and returns its chain hash, H(prev || seq_no || timestamp || committed).
// Aborted rounds get committed=false; the chain advances either way.
func (r *RawShard) AppendRecord(seqNo uint64, timestampMs int64, prev hash.H32, committed bool) (hash.H32, error) {
	var seqBytes, tsBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seqNo)
	binary.BigEndian.PutUint64(tsBytes[:], uint64(timestampMs))
	flag := byte(0)
	if committed {
		flag = 1
	}

	h := hash.SumAll(prev[:], seqBytes[:], tsBytes[:], []byte{flag})

	rec := make([]byte, 0, 8+8+1+hash.Size*2)
	rec = append(rec, seqBytes[:]...)
	rec = append(rec, tsBytes[:]...)
	rec = append(rec, flag)
	rec = append(rec, prev[:]...)
	rec = append(rec, h[:]...)
	if _, _, err := r.Append(rec); err != nil {
		return hash.Zero, err
	}
	return h, nil
}

// Close releases the underlying file handle.
func (r *RawShard) Close() error { return r.file.Close() }
