package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/winery-catalog/internal/seed"
)

var importCmd = &cobra.Command{
	Use:   "import <file.xlsx|file.csv>",
	Short: "Import wineries from a seed spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sheetIndex, _ := cmd.Flags().GetInt("sheet")
		sheetName, _ := cmd.Flags().GetString("sheet-name")

		rows, err := seed.ReadRows(args[0], seed.SheetOptions{SheetIndex: sheetIndex, SheetName: sheetName})
		if err != nil {
			return eris.Wrap(err, "import")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := seed.ImportWineries(ctx, st, rows)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.String("file", args[0]),
			zap.Int("imported", rep.Imported),
			zap.Int("skipped", rep.Skipped),
			zap.Int("failed", rep.Failed),
		)
		formatImportReport(cmd.OutOrStdout(), rep)
		return nil
	},
}

func init() {
	importCmd.Flags().Int("sheet", 0, "zero-based sheet index (xlsx only)")
	importCmd.Flags().String("sheet-name", "", "sheet name, overrides --sheet (xlsx only)")
	rootCmd.AddCommand(importCmd)
}

// formatImportReport writes an import summary to out.
func formatImportReport(out io.Writer, rep *seed.Report) {
	_, _ = fmt.Fprintf(out, "Rows: %d, imported %d, skipped %d, failed %d\n",
		rep.Total, rep.Imported, rep.Skipped, rep.Failed)
	for _, e := range rep.Errors {
		_, _ = fmt.Fprintf(out, "  %s\n", e)
	}
}
