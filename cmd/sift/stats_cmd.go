package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"
)

func newStatsCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "stats",
		Short:        "Print index and store statistics",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := cliLogger(baseLogger)

			ss, cleanup, err := openSearchStore(logger, false)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := ss.Stats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "index documents: %s\n", humanize.Comma(int64(stats.IndexDocs)))
			fmt.Fprintf(out, "index size:      %s\n", humanizeBytes(stats.IndexBytes))
			fmt.Fprintf(out, "entities:        %s\n", strings.Join(stats.Entities, ", "))
			if len(stats.RecordCounts) > 0 {
				entities := make([]string, 0, len(stats.RecordCounts))
				for entity := range stats.RecordCounts {
					entities = append(entities, entity)
				}
				sort.Strings(entities)
				fmt.Fprintln(out, "records:")
				for _, entity := range entities {
					fmt.Fprintf(out, "  %s: %s\n", entity, humanize.Comma(stats.RecordCounts[entity]))
				}
			}
			return nil
		},
	}
	return cmd
}
