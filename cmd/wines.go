package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/winery-catalog/internal/model"
)

var winesCmd = &cobra.Command{
	Use:   "wines",
	Short: "Review and manage catalog wines",
}

// -- wines pending --

var winesPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List wines awaiting review, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, err := wineFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		f.Status = model.WineStatusPending
		f.NewestFirst = true
		return listWines(cmd, f, "wines pending")
	},
}

// -- wines list --

var winesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wines in any status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f, err := wineFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			status, err := model.ParseWineStatus(s)
			if err != nil {
				return err
			}
			f.Status = status
		}
		return listWines(cmd, f, "wines list")
	},
}

// -- wines approve / reject / status --

var winesApproveCmd = &cobra.Command{
	Use:   "approve <wine-id>...",
	Short: "Publish pending wines to the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd, args, model.WineStatusLive)
	},
}

var winesRejectCmd = &cobra.Command{
	Use:   "reject <wine-id>...",
	Short: "Archive wines, or delete them with --delete",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if del, _ := cmd.Flags().GetBool("delete"); del {
			return deleteWines(cmd, args)
		}
		return setStatus(cmd, args, model.WineStatusArchived)
	},
}

var winesStatusCmd = &cobra.Command{
	Use:   "status <wine-id> <pending|live|archived>",
	Short: "Set the review status of a wine",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := model.ParseWineStatus(args[1])
		if err != nil {
			return err
		}
		return setStatus(cmd, args[:1], status)
	},
}

// -- wines delete --

var winesDeleteCmd = &cobra.Command{
	Use:   "delete <wine-id>...",
	Short: "Permanently delete wines",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteWines(cmd, args)
	},
}

// -- wines stats --

var winesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show wine counts by review status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "wines stats")
		}
		formatStatusCounts(cmd.OutOrStdout(), counts)
		return nil
	},
}

// -- wines add --

var winesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a wine by hand",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("name")
		wineryRef, _ := cmd.Flags().GetString("winery")
		priceStr, _ := cmd.Flags().GetString("price")
		statusStr, _ := cmd.Flags().GetString("status")

		name = strings.TrimSpace(name)
		if name == "" {
			return eris.New("wines add: --name is required")
		}
		price, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(priceStr), "$"))
		if err != nil || !price.IsPositive() {
			return eris.Errorf("wines add: invalid price %q", priceStr)
		}
		status, err := model.ParseWineStatus(statusStr)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		winery, err := resolveWinery(ctx, st, wineryRef)
		if err != nil {
			return eris.Wrap(err, "wines add")
		}

		w := &model.Wine{
			WineryID:    winery.ID,
			Name:        name,
			Price:       decimal.NewNullDecimal(price),
			Status:      status,
			IsAvailable: true,
			FirstSeenAt: time.Now().UTC(),
		}
		w.Variety, _ = cmd.Flags().GetString("variety")
		w.Vintage, _ = cmd.Flags().GetString("vintage")
		w.Description, _ = cmd.Flags().GetString("description")
		w.ProductURL, _ = cmd.Flags().GetString("url")

		if err := st.CreateWine(ctx, w); err != nil {
			return eris.Wrap(err, "wines add")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added wine %d: %s (%s, %s)\n",
			w.ID, w.Name, winery.Name, w.Status)
		return nil
	},
}

// -- wines get --

var winesGetCmd = &cobra.Command{
	Use:   "get <wine-id>",
	Short: "Show a wine in any status",
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
			return eris.Wrap(err, "wines get")
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(w)
	},
}

func init() {
	for _, c := range []*cobra.Command{winesPendingCmd, winesListCmd} {
		addWineFilterFlags(c)
	}
	winesListCmd.Flags().String("status", "", "filter by review status (pending, live, archived)")

	winesRejectCmd.Flags().Bool("delete", false, "delete instead of archiving")

	winesAddCmd.Flags().String("name", "", "wine name (required)")
	winesAddCmd.Flags().String("winery", "", "winery id or slug (required)")
	winesAddCmd.Flags().String("price", "", "price, e.g. 35.00 (required)")
	winesAddCmd.Flags().String("variety", "", "grape variety")
	winesAddCmd.Flags().String("vintage", "", "vintage year or NV")
	winesAddCmd.Flags().String("description", "", "tasting notes")
	winesAddCmd.Flags().String("url", "", "product page URL")
	winesAddCmd.Flags().String("status", string(model.WineStatusLive), "initial review status")
	_ = winesAddCmd.MarkFlagRequired("name")
	_ = winesAddCmd.MarkFlagRequired("winery")
	_ = winesAddCmd.MarkFlagRequired("price")

	winesCmd.AddCommand(winesPendingCmd)
	winesCmd.AddCommand(winesListCmd)
	winesCmd.AddCommand(winesApproveCmd)
	winesCmd.AddCommand(winesRejectCmd)
	winesCmd.AddCommand(winesStatusCmd)
	winesCmd.AddCommand(winesDeleteCmd)
	winesCmd.AddCommand(winesStatsCmd)
	winesCmd.AddCommand(winesAddCmd)
	winesCmd.AddCommand(winesGetCmd)
	rootCmd.AddCommand(winesCmd)
}

func listWines(cmd *cobra.Command, f model.WineFilter, action string) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	wines, total, err := st.ListWines(ctx, f)
	if err != nil {
		return eris.Wrap(err, action)
	}
	if total == 0 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No wines found.")
		return nil
	}
	formatWinesList(cmd.OutOrStdout(), wines, true)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d\n", len(wines), total)
	return nil
}

func setStatus(cmd *cobra.Command, args []string, status model.WineStatus) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		if err := st.SetWineStatus(ctx, id, status); err != nil {
			return eris.Wrapf(err, "set wine %d %s", id, status)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wine %d is now %s\n", id, status)
	}
	return nil
}

func deleteWines(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		if err := st.DeleteWine(ctx, id); err != nil {
			return eris.Wrapf(err, "delete wine %d", id)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted wine %d\n", id)
	}
	return nil
}

// formatStatusCounts writes review status counts in workflow order.
func formatStatusCounts(out io.Writer, counts map[model.WineStatus]int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	total := 0
	for _, s := range model.AllWineStatuses() {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
		total += counts[s]
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()
}
