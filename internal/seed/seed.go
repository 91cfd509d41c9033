// Package seed imports the winery list the catalog is scraped from.
package seed

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/store"
)

// Header names of the seed sheet, matched case-insensitively.
const (
	ColumnName    = "Winery Name"
	ColumnShopURL = "Online Store - Top level"
)

// Report summarises an import.
type Report struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Slugify lowercases name, folds accents and joins the remaining
// alphanumeric runs with hyphens.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// ImportWineries creates a winery for every data row of rows. The first
// row must be the header. Rows with an empty name, or whose name already
// exists exactly, are skipped; a row that fails to insert is counted and
// the import continues.
func ImportWineries(ctx context.Context, st store.Store, rows [][]string) (*Report, error) {
	if len(rows) == 0 {
		return nil, eris.New("seed: file has no header row")
	}
	nameCol, urlCol, err := headerColumns(rows[0])
	if err != nil {
		return nil, err
	}

	rep := &Report{}
	for i, row := range rows[1:] {
		line := i + 2
		name := cell(row, nameCol)
		shopURL := cell(row, urlCol)
		if name == "" && shopURL == "" {
			continue
		}
		rep.Total++
		log := zap.L().With(zap.Int("row", line), zap.String("winery", name))

		if name == "" {
			rep.Skipped++
			log.Warn("seed: row has no winery name, skipping")
			continue
		}

		exists, err := st.WineryExists(ctx, name)
		if err != nil {
			return rep, eris.Wrapf(err, "seed: check winery %q", name)
		}
		if exists {
			rep.Skipped++
			log.Info("seed: winery already exists, skipping")
			continue
		}

		w := &model.Winery{Name: name, Slug: Slugify(name), ShopURL: shopURL, IsActive: true}
		if w.Slug == "" {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("row %d: %q has no usable slug", line, name))
			continue
		}
		if err := st.CreateWinery(ctx, w); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("row %d: %v", line, err))
			log.Warn("seed: import failed", zap.Error(err))
			continue
		}
		rep.Imported++
		log.Info("seed: imported winery", zap.Int64("winery_id", w.ID), zap.String("slug", w.Slug))
	}
	return rep, nil
}

func headerColumns(header []string) (int, int, error) {
	nameCol, urlCol := -1, -1
	for i, h := range header {
		switch {
		case strings.EqualFold(strings.TrimSpace(h), ColumnName):
			nameCol = i
		case strings.EqualFold(strings.TrimSpace(h), ColumnShopURL):
			urlCol = i
		}
	}
	if nameCol < 0 || urlCol < 0 {
		return 0, 0, eris.Errorf("seed: header must contain %q and %q, got %q", ColumnName, ColumnShopURL, header)
	}
	return nameCol, urlCol, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
