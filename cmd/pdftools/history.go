package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pdftools/internal/models"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the most recent compressions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeHistory, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeHistory()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No compression history.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tFILE\tORIGINAL\tCOMPRESSED\tSAVED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Date, e.FileName,
					models.FormatFileSize(e.OriginalSize),
					models.FormatFileSize(e.CompressedSize),
					formatRatio(e.CompressionRatio),
				)
			}
			return tw.Flush()
		},
	}
}
