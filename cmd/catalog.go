package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Query the public wine catalog (live, available wines)",
}

// -- catalog list --

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List public wines ordered by name",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := wineFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		f = model.PublicFilter(f)

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		wines, total, err := st.ListWines(ctx, f)
		if err != nil {
			return eris.Wrap(err, "catalog list")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Total  int          `json:"total"`
				Limit  int          `json:"limit"`
				Offset int          `json:"offset"`
				Wines  []model.Wine `json:"wines"`
			}{total, f.Limit, f.Offset, wines})
		}
		if total == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No wines found.")
			return nil
		}
		formatWinesList(cmd.OutOrStdout(), wines, false)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d\n", len(wines), total)
		return nil
	},
}

// -- catalog get --

var catalogGetCmd = &cobra.Command{
	Use:   "get <wine-id>",
	Short: "Show a public wine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		w, err := st.GetWine(ctx, id)
		if err != nil {
			return eris.Wrap(err, "catalog get")
		}
		if !w.IsPublic() {
			return eris.Wrapf(store.ErrNotFound, "catalog get: wine %d", id)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(w)
	},
}

// -- catalog varieties / vintages --

var catalogVarietiesCmd = &cobra.Command{
	Use:   "varieties",
	Short: "Count public wines per variety",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listCounts(cmd, "VARIETY", store.Store.VarietyCounts)
	},
}

var catalogVintagesCmd = &cobra.Command{
	Use:   "vintages",
	Short: "Count public wines per vintage, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listCounts(cmd, "VINTAGE", store.Store.VintageCounts)
	},
}

func init() {
	addWineFilterFlags(catalogListCmd)
	catalogListCmd.Flags().Bool("json", false, "print the page as JSON")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogGetCmd)
	catalogCmd.AddCommand(catalogVarietiesCmd)
	catalogCmd.AddCommand(catalogVintagesCmd)
	rootCmd.AddCommand(catalogCmd)
}

type countsFunc func(store.Store, context.Context) ([]model.Count, error)

func listCounts(cmd *cobra.Command, header string, fn countsFunc) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	counts, err := fn(st, ctx)
	if err != nil {
		return eris.Wrap(err, "catalog counts")
	}
	formatCounts(cmd.OutOrStdout(), header, counts)
	return nil
}

// formatCounts writes grouped counts as a two-column table.
func formatCounts(out io.Writer, header string, counts []model.Count) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s\tWINES\n", header)
	for _, c := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", c.Key, c.Count)
	}
	_ = w.Flush()
}
