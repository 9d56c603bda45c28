package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hotpocket/hpcore/hperrors"
)

func rekeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rekey <dir>",
		Short: "Generate a new signing identity for an existing node directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRekey(args[0])
		},
	}
}

// runRekey implements `rekey <dir>`: generate a new keypair and
// overwrite the persisted seed, leaving UNL membership and the ledger
// untouched.
func runRekey(dir string) error {
	if _, err := os.Stat(idSeedPath(dir)); err != nil {
		return hperrors.Fatal("node_not_initialized", err)
	}

	id, err := generateIdentity(dir)
	if err != nil {
		return err
	}

	fmt.Printf("rekeyed HotPocket node at %s\nnew public key: %s\n", dir, id.Public.String())
	return nil
}
