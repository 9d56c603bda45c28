// Package ledger implements the ledger builder: appending
// hash-chained ledger records from stage-3 consensus and executed outputs,
// sharded by sequence number.
package ledger

import (
	"github.com/hotpocket/hpcore/hash"
)

// PrimaryShardSize bounds how many sequence numbers live in one shard's
// SQLite DB + raw blob file: shard index = floor(seq_no / PrimaryShardSize).
const PrimaryShardSize = 10_000

// ShardIndex returns the shard a given seq_no belongs to.
func ShardIndex(seqNo uint64) uint64 { return seqNo / PrimaryShardSize }

// Record is one committed ledger row.
type Record struct {
	SeqNo           uint64
	Timestamp       int64
	LedgerHash      hash.H32
	PrevLedgerHash  hash.H32
	DataHash        hash.H32
	StateHash       hash.H32
	ConfigHash      hash.H32
	Nonce           hash.H32
	UserHash        hash.H32
	InputHash       hash.H32
	OutputHash      hash.H32

	Users   []UserRef
	Inputs  []InputRef
	Outputs []OutputRef
}

// UserRef is an admitted user's pubkey, stored in the `users` side table.
type UserRef struct {
	PubKey []byte
}

// InputRef is an admitted input's digest plus its raw-blob location.
type InputRef struct {
	Digest hash.H32
	Offset int64
	Size   int64
}

// OutputRef is a produced output's digest plus its raw-blob location.
type OutputRef struct {
	Digest hash.H32
	Offset int64
	Size   int64
}

// ComputeLedgerHash chains the record into the ledger:
//
//	H(prev_ledger_hash || data_hash || state_hash || config_hash ||
//	  user_hash || input_hash || output_hash || seq_no || timestamp || nonce)
func ComputeLedgerHash(r *Record) hash.H32 {
	var seqBytes, tsBytes [8]byte
	putUint64(seqBytes[:], r.SeqNo)
	putUint64(tsBytes[:], uint64(r.Timestamp))

	return hash.SumAll(
		r.PrevLedgerHash[:],
		r.DataHash[:],
		r.StateHash[:],
		r.ConfigHash[:],
		r.UserHash[:],
		r.InputHash[:],
		r.OutputHash[:],
		seqBytes[:],
		tsBytes[:],
		r.Nonce[:],
	)
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// HashUsers hashes the admitted-users set deterministically (sorted
// pubkeys), independent of admission order.
func HashUsers(users []UserRef) hash.H32 {
	sorted := append([]UserRef(nil), users...)
	sortBytesRefs(sorted, func(u UserRef) []byte { return u.PubKey })
	var parts [][]byte
	for _, u := range sorted {
		parts = append(parts, u.PubKey)
	}
	return hash.SumAll(parts...)
}

// HashInputs hashes the admitted-inputs set deterministically (sorted
// digests). An empty set hashes to H(∅).
func HashInputs(inputs []InputRef) hash.H32 {
	digests := make([]hash.H32, len(inputs))
	for i, in := range inputs {
		digests[i] = in.Digest
	}
	hash.Sort(digests)
	var parts [][]byte
	for _, d := range digests {
		parts = append(parts, append([]byte(nil), d[:]...))
	}
	return hash.SumAll(parts...)
}

// HashOutputs hashes the produced-outputs set deterministically.
func HashOutputs(outputs []OutputRef) hash.H32 {
	digests := make([]hash.H32, len(outputs))
	for i, o := range outputs {
		digests[i] = o.Digest
	}
	hash.Sort(digests)
	var parts [][]byte
	for _, d := range digests {
		parts = append(parts, append([]byte(nil), d[:]...))
	}
	return hash.SumAll(parts...)
}

func sortBytesRefs(refs []UserRef, key func(UserRef) []byte) {
	// insertion sort is fine: per-round user counts are small and this
	// keeps the comparison logic obvious.
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && less(key(refs[j]), key(refs[j-1])); j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
}

func less(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
