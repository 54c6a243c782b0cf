// Command dvc is the thin CLI front door onto the core engine (spec §6,
// SPEC_FULL.md §2). It exercises internal/repo from the command line
// without reimplementing a full Git-compatible front end.
package main

import (
	"fmt"
	"os"

	"github.com/outpostml/dvc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
