package hash

// SeqHash identifies a ledger point: the sequence number and the ledger hash
// at that sequence. Used for last_primary_shard_id and
// last_raw_shard_id in proposals.
type SeqHash struct {
	SeqNo uint64
	Hash  H32
}

// Equal reports structural equality.
func (s SeqHash) Equal(o SeqHash) bool {
	return s.SeqNo == o.SeqNo && s.Hash == o.Hash
}

// IsZero reports whether s is the unset SeqHash value.
func (s SeqHash) IsZero() bool { return s.SeqNo == 0 && s.Hash.IsZero() }
