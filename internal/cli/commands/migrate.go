package commands

import (
	"context"

	"github.com/outpostml/dvc/internal/migrate"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "migrate <namespace-root>",
		Short: "Run storage migrations across one or more repositories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			registry := migrate.NewRegistry(log,
				migrate.RenameVersionedFilesMigration{},
				migrate.BuildMerkleTreesMigration{Workers: 8, Log: log},
			)
			return registry.RunAll(context.Background(), args[0], all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "scan every subdirectory for a repository, not just the given root")
	return cmd
}
