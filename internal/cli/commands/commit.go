package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCommitCommand() *cobra.Command {
	var message, author string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit staged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit: -m/--message is required")
			}
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			commit, err := r.Commit(context.Background(), message, author)
			if err != nil {
				return err
			}
			fmt.Printf("[%s] %s\n", commit.ID, commit.Message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "commit author")
	return cmd
}
