package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBranchCommand() *cobra.Command {
	var checkout string

	cmd := &cobra.Command{
		Use:   "branch [name]",
		Short: "Create or switch branches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			if checkout != "" {
				if err := r.Checkout(checkout); err != nil {
					return err
				}
				fmt.Printf("switched to branch %s\n", checkout)
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("branch: specify a name to create, or --checkout to switch")
			}
			if err := r.CreateBranch(args[0]); err != nil {
				return err
			}
			fmt.Printf("created branch %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&checkout, "checkout", "", "switch HEAD to an existing branch")
	return cmd
}
