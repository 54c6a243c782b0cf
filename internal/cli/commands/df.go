package commands

import (
	"context"
	"fmt"

	"github.com/outpostml/dvc/internal/compare"
	"github.com/outpostml/dvc/internal/oxerr"
	"github.com/spf13/cobra"
)

func newDfCommand() *cobra.Command {
	var commitID string

	cmd := &cobra.Command{
		Use:   "df <path>",
		Short: "Print a committed tabular file's rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := context.Background()
			id := commitID
			if id == "" {
				log, err := r.Log(ctx)
				if err != nil {
					return err
				}
				if len(log) == 0 {
					return oxerr.NotFound("df", "HEAD")
				}
				id = log[0].ID
			}

			entries, err := r.EntriesAt(ctx, id)
			if err != nil {
				return err
			}
			var hash string
			for _, e := range entries {
				if e.Path == args[0] {
					hash = e.Hash
					break
				}
			}
			if hash == "" {
				return oxerr.NotFound("df", args[0])
			}

			f, err := r.OpenBlob(hash)
			if err != nil {
				return err
			}
			defer f.Close()

			frame, err := (compare.CSVCodec{}).Decode(f)
			if err != nil {
				return err
			}
			fmt.Println(frame.Columns)
			for _, row := range frame.Rows {
				fmt.Println(row)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&commitID, "commit", "", "commit id to read from (defaults to HEAD)")
	return cmd
}
