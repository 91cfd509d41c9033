package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/winery-catalog/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent scrape runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var wineryID int64
		if ref, _ := cmd.Flags().GetString("winery"); ref != "" {
			w, err := resolveWinery(ctx, st, ref)
			if err != nil {
				return eris.Wrap(err, "runs")
			}
			wineryID = w.ID
		}
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListScrapeRuns(ctx, wineryID, limit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(runs) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}
		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the catalog schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("winery", "", "filter by winery id or slug")
	runsCmd.Flags().Int("limit", 20, "max number of runs to display")

	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(migrateCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.ScrapeRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWINERY\tSTATUS\tFOUND\tINS\tUPD\tRET\tFLAG\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.Duration().Round(time.Second).String()
		}
		firstErr := "-"
		if len(r.Errors) > 0 {
			firstErr = truncate(r.Errors[0], 60)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			id, r.WineryID, r.Status, r.Found, r.Inserted, r.Updated, r.Retired, r.Flagged,
			r.StartedAt.Format("2006-01-02 15:04"), dur, firstErr)
	}
	_ = w.Flush()
}
