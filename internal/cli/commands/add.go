package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path> [path...]",
		Short: "Stage files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := context.Background()
			for _, path := range args {
				if err := r.Add(ctx, path); err != nil {
					return err
				}
				fmt.Printf("staged %s\n", path)
			}
			return nil
		},
	}
}
