package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hotpocket/hpcore/consensus"
	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/hpconfig"
	"github.com/hotpocket/hpcore/hperrors"
	"github.com/hotpocket/hpcore/ledger"
)

func newCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new <dir>",
		Short: "Initialize a new HotPocket node directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(args[0])
		},
	}
}

// runNew implements `new <dir>`: generate a keypair, write a default
// hp.cfg/patch.cfg, and seed an empty ledger's genesis row.
func runNew(dir string) error {
	if _, err := os.Stat(idSeedPath(dir)); err == nil {
		return hperrors.Fatal("node_already_initialized", fmt.Errorf("%s already exists", idSeedPath(dir)))
	}
	if err := os.MkdirAll(ledgerDirPath(dir), 0o755); err != nil {
		return hperrors.Fatal("mkdir_failed", err)
	}

	id, err := generateIdentity(dir)
	if err != nil {
		return err
	}

	cfg := hpconfig.Default()
	cfg.Static.ID = id.Public.String()
	cfg.Static.Execute = true
	cfg.Static.RunAs = fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
	cfg.Static.Log.Level = "info"
	// A freshly-initialized node is its own sole UNL member until an
	// operator hand-edits patch.cfg to add peers.
	cfg.Patch.UNL = []string{id.Public.String()}

	if err := writeConfigFile(dir, cfg); err != nil {
		return err
	}
	if err := writePatchFile(dir, cfg.Patch); err != nil {
		return err
	}

	builder := ledger.NewBuilder(ledgerDirPath(dir))
	defer builder.Close()

	genesis := &consensus.CommitResult{StateHash: hash.Zero, PatchHash: hash.Zero, OutputHash: hash.Zero}
	if _, err := builder.Commit(0, 0, hash.Zero, genesis, nil, nil); err != nil {
		return hperrors.Fatal("genesis_seed_failed", err)
	}

	fmt.Printf("initialized HotPocket node at %s\npublic key: %s\n", dir, id.Public.String())
	return nil
}
