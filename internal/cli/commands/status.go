package commands

import (
	"context"
	"fmt"

	"github.com/outpostml/dvc/internal/stage"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			entries, err := r.Status(context.Background())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("nothing staged")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %s\n", statusLabel(e.Status), e.Path)
			}
			return nil
		},
	}
}

func statusLabel(s stage.Status) string {
	switch s {
	case stage.StatusAdded:
		return "added"
	case stage.StatusModified:
		return "modified"
	case stage.StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}
