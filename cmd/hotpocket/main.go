// Command hotpocket is the HotPocket node CLI:
// `new`/`rekey`/`run` against a node directory. Each subcommand exits
// non-zero through a single Fatal path.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "hotpocket"

func main() {
	root := &cobra.Command{
		Use:   appName,
		Short: "HotPocket BFT replication node",
	}
	root.AddCommand(newCommand(), rekeyCommand(), runCommand())

	if err := root.Execute(); err != nil {
		fatal(err)
	}
}

// fatal prints err and exits non-zero, the CLI's single exit path for any
// error surfaced by a subcommand.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
	os.Exit(1)
}
