package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/winery-catalog/internal/model"
)

// addWineFilterFlags registers the catalog filter flags on c.
func addWineFilterFlags(c *cobra.Command) {
	c.Flags().String("variety", "", "variety substring, case-insensitive")
	c.Flags().String("vintage", "", "exact vintage, e.g. 2021 or NV")
	c.Flags().String("search", "", "name substring")
	c.Flags().String("min-price", "", "minimum price")
	c.Flags().String("max-price", "", "maximum price")
	c.Flags().Int64("winery", 0, "winery id")
	c.Flags().Int("limit", 50, "max number of wines to display")
	c.Flags().Int("offset", 0, "number of wines to skip")
}

// wineFilterFromFlags reads the flags registered by addWineFilterFlags.
func wineFilterFromFlags(c *cobra.Command) (model.WineFilter, error) {
	var f model.WineFilter
	f.Variety, _ = c.Flags().GetString("variety")
	f.Vintage, _ = c.Flags().GetString("vintage")
	f.Search, _ = c.Flags().GetString("search")
	f.WineryID, _ = c.Flags().GetInt64("winery")
	f.Limit, _ = c.Flags().GetInt("limit")
	f.Offset, _ = c.Flags().GetInt("offset")

	var err error
	minStr, _ := c.Flags().GetString("min-price")
	if f.MinPrice, err = parsePriceFlag("min-price", minStr); err != nil {
		return f, err
	}
	maxStr, _ := c.Flags().GetString("max-price")
	if f.MaxPrice, err = parsePriceFlag("max-price", maxStr); err != nil {
		return f, err
	}
	if f.Limit < 0 || f.Offset < 0 {
		return f, eris.New("--limit and --offset must not be negative")
	}
	return f, nil
}

func parsePriceFlag(name, s string) (decimal.NullDecimal, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, eris.Errorf("--%s: invalid price %q", name, s)
	}
	return decimal.NewNullDecimal(d), nil
}

// formatWinesList writes a tabular list of wines to out.
func formatWinesList(out io.Writer, wines []model.Wine, showStatus bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if showStatus {
		_, _ = fmt.Fprintln(w, "ID\tWINERY\tNAME\tVARIETY\tVINTAGE\tPRICE\tSTATUS\tAVAILABLE\tFLAGS")
	} else {
		_, _ = fmt.Fprintln(w, "ID\tWINERY\tNAME\tVARIETY\tVINTAGE\tPRICE")
	}
	for _, wn := range wines {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s",
			wn.ID, wn.WineryID, wn.Name, dash(wn.Variety), dash(wn.Vintage), priceString(wn.Price))
		if showStatus {
			_, _ = fmt.Fprintf(w, "\t%s\t%t\t%s", wn.Status, wn.IsAvailable, dash(strings.Join(wn.ReviewFlags, "; ")))
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func priceString(p decimal.NullDecimal) string {
	if !p.Valid {
		return "-"
	}
	return "$" + p.Decimal.StringFixed(2)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to at most n runes, appending "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
