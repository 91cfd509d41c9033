package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/winery-catalog/internal/quality"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report on the quality of the scraped catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := quality.Verify(ctx, st, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "verify")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		formatQualityReport(cmd.OutOrStdout(), rep)
		return nil
	},
}

var fixCapsCmd = &cobra.Command{
	Use:   "fix-caps",
	Short: "Title-case wine names scraped in ALL CAPS",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		apply, _ := cmd.Flags().GetBool("apply")
		wineryRef, _ := cmd.Flags().GetString("winery")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var wineryID int64
		if wineryRef != "" {
			w, err := resolveWinery(ctx, st, wineryRef)
			if err != nil {
				return eris.Wrap(err, "fix-caps")
			}
			wineryID = w.ID
		}

		fixes, err := quality.FixCaps(ctx, st, wineryID, apply)
		if err != nil {
			return eris.Wrap(err, "fix-caps")
		}
		formatNameFixes(cmd.OutOrStdout(), fixes, apply)
		return nil
	},
}

func init() {
	verifyCmd.Flags().Bool("json", false, "print the report as JSON")

	fixCapsCmd.Flags().Bool("apply", false, "save the new names (default is a dry run)")
	fixCapsCmd.Flags().String("winery", "", "only fix wines of this winery (id or slug)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(fixCapsCmd)
}

// formatQualityReport writes a human-readable verification report to out.
func formatQualityReport(out io.Writer, rep *quality.Report) {
	_, _ = fmt.Fprintf(out, "Wines: %d across %d of %d active wineries (%.1f%% coverage)\n",
		rep.TotalWines, rep.WithWines, len(rep.Wineries), rep.Coverage)
	_, _ = fmt.Fprintf(out, "Grade: %s\n\n", rep.Grade)

	_, _ = fmt.Fprintln(out, "Missing fields:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "  price\t%d\n", rep.MissingPrice)
	_, _ = fmt.Fprintf(w, "  variety\t%d\n", rep.MissingVariety)
	_, _ = fmt.Fprintf(w, "  vintage\t%d\n", rep.MissingVintage)
	_, _ = fmt.Fprintf(w, "  description\t%d\n", rep.MissingDescription)
	_ = w.Flush()

	if rep.MinPrice.Valid {
		_, _ = fmt.Fprintf(out, "\nPrices: min %s, max %s, avg %s\n",
			priceString(rep.MinPrice), priceString(rep.MaxPrice), priceString(rep.AvgPrice))
	}

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		_, _ = fmt.Fprintf(out, "\n%s (%d):\n", title, len(lines))
		for _, l := range lines {
			_, _ = fmt.Fprintf(out, "  %s\n", l)
		}
	}

	findings := func(fs []quality.Finding, withPrice bool) []string {
		lines := make([]string, 0, len(fs))
		for _, f := range fs {
			l := fmt.Sprintf("[%d] %s: %s", f.WineID, f.Winery, f.Wine)
			if f.Vintage != "" {
				l += " " + f.Vintage
			}
			if withPrice {
				l += " " + priceString(f.Price)
			}
			lines = append(lines, l)
		}
		return lines
	}

	var dups []string
	for _, d := range rep.Duplicates {
		dups = append(dups, fmt.Sprintf("%s: %s %s x%d", d.Winery, d.Wine, d.Vintage, d.Count))
	}
	var low, stale []string
	for _, wc := range rep.LowWineries {
		low = append(low, fmt.Sprintf("%s (%d wines)", wc.Name, wc.Wines))
	}
	for _, wc := range rep.StaleWineries {
		stale = append(stale, fmt.Sprintf("%s (last scraped %s)", wc.Name, wc.LastScrapedAt.Format("2006-01-02")))
	}

	section("Suspicious vintages", findings(rep.SuspiciousVintages, false))
	section("Duplicates", dups)
	section(fmt.Sprintf("Prices below %s", quality.LowPrice.StringFixed(2)), findings(rep.LowPrices, true))
	section(fmt.Sprintf("Prices above %s", quality.HighPrice.StringFixed(2)), findings(rep.HighPrices, true))
	section("Wineries without wines", rep.EmptyWineries)
	section("Wineries with few wines", low)
	section("Never scraped", rep.NeverScraped)
	section("Stale", stale)
}

// formatNameFixes writes proposed or applied name fixes to out.
func formatNameFixes(out io.Writer, fixes []quality.NameFix, applied bool) {
	if len(fixes) == 0 {
		_, _ = fmt.Fprintln(out, "No ALL CAPS names found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tOLD\tNEW")
	for _, f := range fixes {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", f.WineID, f.Old, f.New)
	}
	_ = w.Flush()

	verb, noun := "Would fix", "names"
	if applied {
		verb = "Fixed"
	}
	if len(fixes) == 1 {
		noun = "name"
	}
	_, _ = fmt.Fprintf(out, "%s %d %s\n", verb, len(fixes), noun)
}
