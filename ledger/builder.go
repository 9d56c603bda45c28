package ledger

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hotpocket/hpcore/consensus"
	"github.com/hotpocket/hpcore/hash"
)

// Builder is (G) the ledger builder: it takes a committed round's tuple
// and the round's raw input/output bodies, and appends a
// hash-chained record to the right primary shard, opening shard DBs and
// blob files lazily as seq_no crosses a PrimaryShardSize boundary.
type Builder struct {
	mu   sync.Mutex
	dir  string
	subj string // "primary" db / "raw" blob file name prefix

	stores map[uint64]*Store
	raws   map[uint64]*RawShard
}

// NewBuilder roots a Builder at dir (one subdirectory per node).
func NewBuilder(dir string) *Builder {
	return &Builder{
		dir:    dir,
		stores: map[uint64]*Store{},
		raws:   map[uint64]*RawShard{},
	}
}

func (b *Builder) shardFor(seqNo uint64) (*Store, *RawShard, error) {
	idx := ShardIndex(seqNo)

	b.mu.Lock()
	defer b.mu.Unlock()

	store, ok := b.stores[idx]
	if !ok {
		var err error
		store, err = Open(filepath.Join(b.dir, fmt.Sprintf("primary_%d.sqlite", idx)))
		if err != nil {
			return nil, nil, err
		}
		b.stores[idx] = store
	}
	raw, ok := b.raws[idx]
	if !ok {
		var err error
		raw, err = OpenRawShard(filepath.Join(b.dir, fmt.Sprintf("raw_%d.blob", idx)))
		if err != nil {
			return nil, nil, err
		}
		b.raws[idx] = raw
	}
	return store, raw, nil
}

// Commit appends one committed round: write the raw input/output bodies into the
// shard's blob file, build the side-table refs, compute data_hash/
// user_hash/input_hash/output_hash, and append the row. The previous
// ledger_hash is read from record seqNo-1 via Get, across shards, and
// Commit fails if that record is missing; Append then re-checks it
// against the shard's own last row.
func (b *Builder) Commit(seqNo uint64, timestampMs int64, nonce hash.H32, result *consensus.CommitResult, inputBodies, outputBodies map[hash.H32][]byte) (*Record, error) {
	store, raw, err := b.shardFor(seqNo)
	if err != nil {
		return nil, err
	}

	users := make([]UserRef, len(result.Users))
	for i, u := range result.Users {
		users[i] = UserRef{PubKey: append([]byte(nil), u[:]...)}
	}

	inputs := make([]InputRef, 0, len(result.InputHashes))
	for _, h := range result.InputHashes {
		body := inputBodies[h]
		offset, size, err := raw.Append(body)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, InputRef{Digest: h, Offset: offset, Size: size})
	}

	outputs := make([]OutputRef, 0, len(outputBodies))
	for h, body := range outputBodies {
		offset, size, err := raw.Append(body)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, OutputRef{Digest: h, Offset: offset, Size: size})
	}

	var prevHash hash.H32
	if seqNo > 0 {
		prev, err := b.Get(seqNo - 1)
		if err != nil {
			return nil, err
		}
		prevHash = prev.LedgerHash
	}

	r := &Record{
		SeqNo:          seqNo,
		PrevLedgerHash: prevHash,
		Timestamp:      timestampMs,
		DataHash:       dataHash(result.InputHashes),
		StateHash:      result.StateHash,
		ConfigHash:     result.PatchHash,
		Nonce:          nonce,
		UserHash:       HashUsers(users),
		InputHash:      HashInputs(inputs),
		OutputHash:     HashOutputs(outputs),
		Users:          users,
		Inputs:         inputs,
		Outputs:        outputs,
	}

	if err := store.Append(r); err != nil {
		return nil, err
	}
	return r, nil
}

// dataHash hashes the round's admitted inputs in their agreed commit
// order, preserving sequence — unlike
// input_hash, which must stay order-independent for the stage-merge
// idempotence invariant, data_hash is the row's audit trail back to the
// exact committed ordering.
func dataHash(orderedInputs []hash.H32) hash.H32 {
	parts := make([][]byte, len(orderedInputs))
	for i, h := range orderedInputs {
		parts[i] = append([]byte(nil), h[:]...)
	}
	return hash.SumAll(parts...)
}

// AppendRaw appends one raw chain record for a round attempt at seqNo,
// committed or aborted, and returns the new chain hash. prev is the
// caller-tracked last raw chain hash (last_raw_shard_id).
func (b *Builder) AppendRaw(seqNo uint64, timestampMs int64, prev hash.H32, committed bool) (hash.H32, error) {
	_, raw, err := b.shardFor(seqNo)
	if err != nil {
		return hash.Zero, err
	}
	return raw.AppendRecord(seqNo, timestampMs, prev, committed)
}

// Get returns the committed record at seqNo, opening its shard if needed.
func (b *Builder) Get(seqNo uint64) (*Record, error) {
	store, _, err := b.shardFor(seqNo)
	if err != nil {
		return nil, err
	}
	return store.GetBySeqNo(seqNo)
}

// LastRecord returns the highest-seq_no row committed so far across every
// shard on disk, for a restarting node to resume at (startSeqNo =
// last.SeqNo+1) rather than replaying from genesis. Returns ok=false on an
// empty ledger directory.
func (b *Builder) LastRecord() (*Record, bool, error) {
	matches, err := filepath.Glob(filepath.Join(b.dir, "primary_*.sqlite"))
	if err != nil {
		return nil, false, fmt.Errorf("ledger_dir_scan_failed: %w", err)
	}
	if len(matches) == 0 {
		return nil, false, nil
	}

	indices := make([]uint64, 0, len(matches))
	for _, m := range matches {
		var idx uint64
		if _, err := fmt.Sscanf(filepath.Base(m), "primary_%d.sqlite", &idx); err == nil {
			indices = append(indices, idx)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] > indices[j] })

	for _, idx := range indices {
		store, _, err := b.shardFor(idx * PrimaryShardSize)
		if err != nil {
			return nil, false, err
		}
		if r, ok, err := store.LastRecord(); err != nil {
			return nil, false, err
		} else if ok {
			return r, true, nil
		}
	}
	return nil, false, nil
}

// Close releases every open shard store and blob file.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, s := range b.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, r := range b.raws {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
