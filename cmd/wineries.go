package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/winery-catalog/internal/model"
)

var wineriesCmd = &cobra.Command{
	Use:   "wineries",
	Short: "Inspect and manage wineries",
}

// -- wineries list --

var wineriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wineries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		all, _ := cmd.Flags().GetBool("all")
		wineries, err := st.ListWineries(ctx, !all)
		if err != nil {
			return eris.Wrap(err, "wineries list")
		}
		if len(wineries) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No wineries found.")
			return nil
		}
		formatWineriesList(cmd.OutOrStdout(), wineries)
		return nil
	},
}

// -- wineries get --

var wineriesGetCmd = &cobra.Command{
	Use:   "get <winery-id|slug>",
	Short: "Show a winery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		w, err := resolveWinery(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "wineries get")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(w)
	},
}

// -- wineries delete --

var wineriesDeleteCmd = &cobra.Command{
	Use:   "delete <winery-id|slug>",
	Short: "Delete a winery together with its wines and scrape runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		w, err := resolveWinery(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "wineries delete")
		}
		if err := st.DeleteWinery(ctx, w.ID); err != nil {
			return eris.Wrap(err, "wineries delete")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted winery %d (%s)\n", w.ID, w.Name)
		return nil
	},
}

func init() {
	wineriesListCmd.Flags().Bool("all", false, "include inactive wineries")

	wineriesCmd.AddCommand(wineriesListCmd)
	wineriesCmd.AddCommand(wineriesGetCmd)
	wineriesCmd.AddCommand(wineriesDeleteCmd)
	rootCmd.AddCommand(wineriesCmd)
}

// formatWineriesList writes a tabular list of wineries to out.
func formatWineriesList(out io.Writer, wineries []model.Winery) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSLUG\tACTIVE\tLAST_SCRAPED\tSHOP_URL")
	for _, wy := range wineries {
		last := "never"
		if wy.LastScrapedAt != nil {
			last = wy.LastScrapedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\n",
			wy.ID, wy.Name, wy.Slug, wy.IsActive, last, wy.ShopURL)
	}
	_ = w.Flush()
}
