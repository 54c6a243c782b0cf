// Package cli builds the thin command-line front door onto internal/repo
// (SPEC_FULL.md §2's CLI surface), the way poon-cli/internal/cli/root.go
// builds one root command and registers subcommands from a single place.
// Scope is deliberately narrow: init, add, commit, status, log, branch,
// df, diff, migrate. The rest of the Git-compatible surface (push, pull,
// clone, merge, checkout, ...) is an external collaborator's concern.
package cli

import (
	"github.com/outpostml/dvc/internal/cli/commands"
	"github.com/spf13/cobra"
)

// Execute is the CLI's main entrypoint.
func Execute() error {
	rootCmd := &cobra.Command{
		Use:   "dvc",
		Short: "dvc - content-addressed version control for ML datasets",
		Long: `dvc tracks arbitrary files, including multi-gigabyte tabular
artifacts, across commits and branches, and exposes tabular diff/compare
over committed files.`,
	}

	rootCmd.PersistentFlags().String("repo", ".", "path to the working tree root")

	commands.AddCommands(rootCmd)

	return rootCmd.Execute()
}
