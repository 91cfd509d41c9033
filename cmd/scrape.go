package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/pipeline"
	"github.com/sells-group/winery-catalog/internal/scrape"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <winery-id|slug>",
	Short: "Scrape one winery and reconcile its wines into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		w, err := resolveWinery(ctx, env.Store, args[0])
		if err != nil {
			return eris.Wrap(err, "scrape")
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			res, err := env.Pipeline.DryRun(ctx, w.ID)
			if err != nil {
				return eris.Wrap(err, "scrape dry run")
			}
			formatScrapeResult(cmd.OutOrStdout(), w, res)
			return nil
		}

		out, err := env.Pipeline.ScrapeAndSave(ctx, w.ID)
		if err != nil {
			return eris.Wrap(err, "scrape")
		}
		formatRun(cmd.OutOrStdout(), w, out.Run)
		return nil
	},
}

var scrapeAllCmd = &cobra.Command{
	Use:   "scrape-all",
	Short: "Scrape every active winery",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		workers, _ := cmd.Flags().GetInt("workers")
		if workers <= 0 {
			workers = cfg.Scrape.Workers
		}

		sum, err := env.Pipeline.ScrapeAll(ctx, workers)
		if sum != nil {
			formatSummary(cmd.OutOrStdout(), sum)
		}
		return err
	},
}

func init() {
	scrapeCmd.Flags().Bool("dry-run", false, "scrape and print records without saving")
	scrapeAllCmd.Flags().Int("workers", 0, "concurrent winery scrapes (default scrape.workers)")

	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(scrapeAllCmd)
}

// formatScrapeResult writes the records of a dry run to out.
func formatScrapeResult(out io.Writer, w *model.Winery, res *scrape.Result) {
	_, _ = fmt.Fprintf(out, "%s: %s, %d product pages, %d records, %d skipped\n",
		w.Name, res.State, res.ProductURLs, len(res.Wines), res.Skipped)
	if res.Site != "" {
		_, _ = fmt.Fprintf(out, "site rule: %s (%s mode)\n", res.Site, res.Mode)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tVARIETY\tVINTAGE\tPRICE\tURL")
	for _, rec := range res.Wines {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.Name, dash(rec.Variety), dash(rec.Vintage), priceString(rec.Price), rec.ProductURL)
	}
	_ = tw.Flush()

	for _, e := range res.Errors {
		_, _ = fmt.Fprintf(out, "error: %s\n", e)
	}
}

// formatRun writes the outcome of one scrape-and-save to out.
func formatRun(out io.Writer, w *model.Winery, run *model.ScrapeRun) {
	_, _ = fmt.Fprintf(out, "%s: %s in %s\n", w.Name, run.Status, run.Duration().Round(time.Millisecond))
	_, _ = fmt.Fprintf(out, "  found %d, inserted %d, updated %d, unchanged %d, retired %d, flagged %d\n",
		run.Found, run.Inserted, run.Updated, run.Unchanged, run.Retired, run.Flagged)
	if len(run.Errors) > 0 {
		_, _ = fmt.Fprintf(out, "  %d errors:\n    %s\n", len(run.Errors), strings.Join(run.Errors, "\n    "))
	}
}

// formatSummary writes a ScrapeAll summary to out.
func formatSummary(out io.Writer, s *pipeline.Summary) {
	_, _ = fmt.Fprintf(out, "Wineries: %d (complete %d, empty %d, failed %d)\n",
		s.Wineries, s.Complete, s.Empty, s.Failed)
	_, _ = fmt.Fprintf(out, "Wines: inserted %d, updated %d, retired %d, flagged %d\n",
		s.Inserted, s.Updated, s.Retired, s.Flagged)
}
