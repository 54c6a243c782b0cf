package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Show commit history from HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			history, err := r.Log(context.Background())
			if err != nil {
				return err
			}
			for _, c := range history {
				fmt.Printf("commit %s\nAuthor: %s\nDate:   %s\n\n    %s\n\n",
					c.ID, c.Author, time.Unix(c.Timestamp, 0).UTC().Format(time.RFC3339), c.Message)
			}
			return nil
		},
	}
}
