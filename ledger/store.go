package ledger

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // database/sql driver registration

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hperrors"
)

// ledgerVersion names the `hp[ledger_version]` side table; bumped whenever the row schema changes incompatibly.
const ledgerVersion = 1

// Store is one primary shard's SQLite-backed ledger DB.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite DB at path and ensures its
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, hperrors.Fatal("ledger_db_open_failed", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger (
			seq_no INTEGER PRIMARY KEY,
			time INTEGER NOT NULL,
			ledger_hash BLOB NOT NULL,
			prev_ledger_hash BLOB NOT NULL,
			data_hash BLOB NOT NULL,
			state_hash BLOB NOT NULL,
			config_hash BLOB NOT NULL,
			nonce BLOB NOT NULL,
			user_hash BLOB NOT NULL,
			input_hash BLOB NOT NULL,
			output_hash BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_time ON ledger(time)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_hash ON ledger(ledger_hash)`,
		`CREATE TABLE IF NOT EXISTS users (
			ledger_seq_no INTEGER NOT NULL,
			pubkey BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_seq_pubkey ON users(ledger_seq_no, pubkey)`,
		`CREATE TABLE IF NOT EXISTS inputs (
			ledger_seq_no INTEGER NOT NULL,
			hash BLOB NOT NULL,
			blob_offset INTEGER NOT NULL,
			blob_size INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inputs_hash ON inputs(hash)`,
		`CREATE TABLE IF NOT EXISTS outputs (
			ledger_seq_no INTEGER NOT NULL,
			hash BLOB NOT NULL,
			blob_offset INTEGER NOT NULL,
			blob_size INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outputs_hash ON outputs(hash)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS hp%d (key TEXT PRIMARY KEY, value TEXT)`, ledgerVersion),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return hperrors.Fatal("ledger_schema_init_failed", err)
		}
	}
	return nil
}

// Close releases the underlying DB handle.
func (s *Store) Close() error { return s.db.Close() }

// LastRecord returns the highest seq_no row, or ok=false if the shard is
// empty.
func (s *Store) LastRecord() (*Record, bool, error) {
	row := s.db.QueryRow(`SELECT seq_no, time, ledger_hash, prev_ledger_hash, data_hash, state_hash,
		config_hash, nonce, user_hash, input_hash, output_hash
		FROM ledger ORDER BY seq_no DESC LIMIT 1`)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, hperrors.Fatal("ledger_query_failed", err)
	}
	return r, true, nil
}

// GetBySeqNo returns the row at seqNo.
func (s *Store) GetBySeqNo(seqNo uint64) (*Record, error) {
	row := s.db.QueryRow(`SELECT seq_no, time, ledger_hash, prev_ledger_hash, data_hash, state_hash,
		config_hash, nonce, user_hash, input_hash, output_hash
		FROM ledger WHERE seq_no = ?`, seqNo)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, hperrors.Abort("ledger_seq_not_found", nil)
	}
	if err != nil {
		return nil, hperrors.Fatal("ledger_query_failed", err)
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	r := &Record{}
	var ledgerHash, prevHash, dataHash, stateHash, configHash, nonce, userHash, inputHash, outputHash []byte
	err := row.Scan(&r.SeqNo, &r.Timestamp, &ledgerHash, &prevHash, &dataHash, &stateHash,
		&configHash, &nonce, &userHash, &inputHash, &outputHash)
	if err != nil {
		return nil, err
	}
	r.LedgerHash, _ = hash.FromBytes(ledgerHash)
	r.PrevLedgerHash, _ = hash.FromBytes(prevHash)
	r.DataHash, _ = hash.FromBytes(dataHash)
	r.StateHash, _ = hash.FromBytes(stateHash)
	r.ConfigHash, _ = hash.FromBytes(configHash)
	r.Nonce, _ = hash.FromBytes(nonce)
	r.UserHash, _ = hash.FromBytes(userHash)
	r.InputHash, _ = hash.FromBytes(inputHash)
	r.OutputHash, _ = hash.FromBytes(outputHash)
	return r, nil
}

// Append appends r transactionally. If the shard is non-empty and
// its last row's seq_no != r.SeqNo-1, Append fails — the caller must
// state-sync instead of silently skipping a gap. An empty shard accepts
// only its own first seq_no (genesis or a shard boundary); the
// cross-shard prev_ledger_hash is the caller's to resolve.
func (s *Store) Append(r *Record) error {
	last, ok, err := s.LastRecord()
	if err != nil {
		return err
	}
	if ok {
		if last.SeqNo+1 != r.SeqNo {
			return hperrors.Abort("ledger_seq_gap", fmt.Errorf("last seq_no %d, got %d", last.SeqNo, r.SeqNo))
		}
		r.PrevLedgerHash = last.LedgerHash
	} else if r.SeqNo%PrimaryShardSize != 0 {
		return hperrors.Abort("ledger_seq_gap", fmt.Errorf("empty shard accepts only seq_no %d, got %d", ShardIndex(r.SeqNo)*PrimaryShardSize, r.SeqNo))
	}
	r.LedgerHash = ComputeLedgerHash(r)

	tx, err := s.db.Begin()
	if err != nil {
		return hperrors.Fatal("ledger_tx_begin_failed", err)
	}

	_, err = tx.Exec(`INSERT INTO ledger (seq_no, time, ledger_hash, prev_ledger_hash, data_hash,
		state_hash, config_hash, nonce, user_hash, input_hash, output_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SeqNo, r.Timestamp, r.LedgerHash[:], r.PrevLedgerHash[:], r.DataHash[:],
		r.StateHash[:], r.ConfigHash[:], r.Nonce[:], r.UserHash[:], r.InputHash[:], r.OutputHash[:])
	if err != nil {
		tx.Rollback()
		return hperrors.Fatal("ledger_insert_failed", err)
	}

	for _, u := range r.Users {
		if _, err := tx.Exec(`INSERT INTO users (ledger_seq_no, pubkey) VALUES (?, ?)`, r.SeqNo, u.PubKey); err != nil {
			tx.Rollback()
			return hperrors.Fatal("ledger_insert_users_failed", err)
		}
	}
	for _, in := range r.Inputs {
		if _, err := tx.Exec(`INSERT INTO inputs (ledger_seq_no, hash, blob_offset, blob_size) VALUES (?, ?, ?, ?)`,
			r.SeqNo, in.Digest[:], in.Offset, in.Size); err != nil {
			tx.Rollback()
			return hperrors.Fatal("ledger_insert_inputs_failed", err)
		}
	}
	for _, o := range r.Outputs {
		if _, err := tx.Exec(`INSERT INTO outputs (ledger_seq_no, hash, blob_offset, blob_size) VALUES (?, ?, ?, ?)`,
			r.SeqNo, o.Digest[:], o.Offset, o.Size); err != nil {
			tx.Rollback()
			return hperrors.Fatal("ledger_insert_outputs_failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return hperrors.Fatal("ledger_tx_commit_failed", err)
	}
	return nil
}
