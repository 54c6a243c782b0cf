package commands

import (
	"fmt"

	"github.com/outpostml/dvc/internal/repo"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Init(repoFlag(cmd), newLogger())
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Println("Initialized empty repository")
			return nil
		},
	}
}
