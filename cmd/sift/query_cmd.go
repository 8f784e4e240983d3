package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"pkt.systems/sift/api"
	"pkt.systems/sift/fql"
	"pkt.systems/sift/internal/search"
	"pkt.systems/sift/store"
)

// recordOut is the JSON-lines shape emitted for each matched record.
type recordOut struct {
	ID  string         `json:"id"`
	Doc map[string]any `json:"doc"`
}

func newQueryCommand(baseLogger pslog.Logger) *cobra.Command {
	var (
		filterExpr string
		sortExpr   string
		offset     int
		limit      int
		totals     bool
		explain    bool
		bootstrap  bool
	)
	cmd := &cobra.Command{
		Use:          "query <entity>",
		Short:        "Run one filtered read and print matching records as JSON lines",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := args[0]
			ctx := cmd.Context()
			logger := cliLogger(baseLogger)

			filter, err := fql.Parse(filterExpr)
			if err != nil {
				return err
			}
			sortSpec, err := fql.ParseSort(sortExpr)
			if err != nil {
				return err
			}

			ss, cleanup, err := openSearchStore(logger, bootstrap)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			if explain {
				decision := search.Decide(ss.Registry(), entity, filter, sortSpec)
				branch := "store"
				if decision.Route {
					branch = "index"
				}
				if err := enc.Encode(map[string]string{"branch": branch, "reason": decision.Reason}); err != nil {
					return err
				}
			}

			q := store.Query{Entity: entity, Filter: filter, Sort: sortSpec}
			if offset > 0 || limit > 0 || totals {
				q.Page = &api.Page{Offset: offset, Limit: limit, WantTotal: totals}
			}

			tx, err := ss.BeginRead(ctx)
			if err != nil {
				return err
			}
			defer tx.Close()
			res, err := tx.LoadObjects(ctx, q)
			if err != nil {
				return err
			}

			for _, rec := range res.Records {
				if err := enc.Encode(recordOut{ID: rec.ID, Doc: rec.Doc}); err != nil {
					return err
				}
			}
			if totals && res.Total != nil {
				if err := enc.Encode(map[string]int64{"total": *res.Total}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&filterExpr, "filter", "", "filter expression, e.g. 'status==published age>10'")
	flags.StringVar(&sortExpr, "sort", "", "sort keys, e.g. 'age:desc,title'")
	flags.IntVar(&offset, "offset", 0, "rows to skip after ordering")
	flags.IntVar(&limit, "limit", 0, "maximum rows to return (0 means unbounded)")
	flags.BoolVar(&totals, "totals", false, "also print the full match count")
	flags.BoolVar(&explain, "explain", false, "print the routing decision before the records")
	flags.BoolVar(&bootstrap, "bootstrap", false, "populate the index from the store first if it is empty")
	return cmd
}
