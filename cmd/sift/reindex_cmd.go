package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"
)

func newReindexCommand(baseLogger pslog.Logger) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:          "reindex",
		Short:        "Populate the search index from the primary store",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := cliLogger(baseLogger)

			ss, cleanup, err := openSearchStore(logger, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if force {
				err = ss.Rebuild(ctx)
			} else {
				err = ss.Bootstrap(ctx)
			}
			if err != nil {
				return err
			}

			stats, err := ss.Stats(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed documents: %s\n", humanize.Comma(int64(stats.IndexDocs)))
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reindex every record even when the index is already populated")
	return cmd
}
