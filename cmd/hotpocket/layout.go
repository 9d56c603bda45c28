package main

import "path/filepath"

// Node-directory layout: every hotpocket
// node directory holds its local signing seed, its static+patch config,
// the single-instance lock file, and a ledger/ subdirectory of sharded
// primary DBs + raw blob files.
func hpCfgPath(dir string) string     { return filepath.Join(dir, "hp.cfg") }
func patchCfgPath(dir string) string  { return filepath.Join(dir, "patch.cfg") }
func lockPath(dir string) string      { return filepath.Join(dir, "hp.cfg.lock") }
func idSeedPath(dir string) string    { return filepath.Join(dir, "id.seed") }
func ledgerDirPath(dir string) string { return filepath.Join(dir, "ledger") }
