// Package reconcile merges a fresh scrape of one winery into its stored
// wines without losing curated state.
package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/model"
)

// Plan diffs scraped records against the wines already stored for a winery.
//
// Records match stored wines on the normalized name (lowercase, collapsed
// whitespace); there is no fuzzy matching. A matched wine gets its price,
// product URL, availability and last-seen time refreshed and keeps every
// other field. An unmatched record becomes a new wine with defaultStatus.
// A stored, available wine whose key is missing from the scrape is retired
// (marked unavailable), never deleted.
//
// When several records share a key the first one wins. Plan is pure: it
// reads nothing but its arguments and the returned set is applied by the
// store in one transaction.
func Plan(wineryID int64, scraped []model.RawWine, existing []model.Wine, defaultStatus model.WineStatus, now time.Time) *model.ChangeSet {
	cs := &model.ChangeSet{WineryID: wineryID, SeenAt: now}

	stored := make(map[string][]model.Wine, len(existing))
	for _, w := range existing {
		key := model.NormalizeName(w.Name)
		stored[key] = append(stored[key], w)
	}

	seen := make(map[string]struct{}, len(scraped))
	for _, rec := range scraped {
		key := model.NormalizeName(rec.Name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			zap.L().Debug("reconcile: duplicate scraped name ignored",
				zap.Int64("winery_id", wineryID),
				zap.String("name", rec.Name),
			)
			continue
		}
		seen[key] = struct{}{}

		flagged, reasons := extract.Triage(rec)
		if flagged {
			cs.Flagged++
		}

		matches, ok := stored[key]
		if !ok {
			w := model.NewWineFromRaw(rec, defaultStatus, now)
			w.WineryID = wineryID
			w.ReviewFlags = reasons
			cs.Inserts = append(cs.Inserts, w)
			continue
		}
		for _, w := range matches {
			cs.Updates = append(cs.Updates, update(w, rec, reasons))
		}
	}

	for key, ws := range stored {
		if _, ok := seen[key]; ok {
			continue
		}
		for _, w := range ws {
			if w.IsAvailable {
				cs.Retired = append(cs.Retired, w)
			}
		}
	}
	// Map iteration order is random; keep plans deterministic.
	sort.Slice(cs.Retired, func(i, j int) bool { return cs.Retired[i].ID < cs.Retired[j].ID })

	return cs
}

func update(w model.Wine, rec model.RawWine, flags []string) model.WineUpdate {
	u := model.WineUpdate{
		WineID:       w.ID,
		Name:         w.Name,
		OldPrice:     w.Price,
		NewPrice:     w.Price,
		ProductURL:   w.ProductURL,
		WasAvailable: w.IsAvailable,
		ReviewFlags:  flags,
	}
	if rec.Price.Valid && !samePrice(w.Price, rec.Price) {
		u.NewPrice = rec.Price
		u.PriceChanged = true
	}
	if rec.ProductURL != "" {
		u.ProductURL = rec.ProductURL
	}
	return u
}

func samePrice(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
