package main

import (
	"os"

	"github.com/hotpocket/hpcore/hpcrypto"
	"github.com/hotpocket/hpcore/hperrors"
)

// loadIdentity reads the 32-byte ed25519 seed at idSeedPath(dir).
func loadIdentity(dir string) (hpcrypto.Identity, error) {
	seed, err := os.ReadFile(idSeedPath(dir))
	if err != nil {
		return hpcrypto.Identity{}, hperrors.Fatal("identity_read_failed", err)
	}
	return hpcrypto.FromSeed(seed)
}

// generateIdentity creates a fresh identity and persists its seed at
// idSeedPath(dir), mode 0600 since it is the node's private signing key.
func generateIdentity(dir string) (hpcrypto.Identity, error) {
	id, err := hpcrypto.Generate()
	if err != nil {
		return hpcrypto.Identity{}, err
	}
	if err := os.WriteFile(idSeedPath(dir), id.Seed(), 0o600); err != nil {
		return hpcrypto.Identity{}, hperrors.Fatal("identity_write_failed", err)
	}
	return id, nil
}
