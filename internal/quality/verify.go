// Package quality reports on and repairs the scraped catalog.
package quality

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/store"
)

// Review thresholds for the price sanity check.
var (
	LowPrice  = decimal.NewFromInt(15)
	HighPrice = decimal.NewFromInt(200)
)

const (
	oldestPlausibleVintage = 2000
	staleAfter             = 7 * 24 * time.Hour
	lowWineCount           = 5
	priceSampleSize        = 10
)

// Grades, best first.
const (
	GradeProductionReady = "production ready"
	GradeGood            = "good"
	GradeFair            = "fair"
	GradeNeedsWork       = "needs work"
)

// WineryCount is the number of available wines of one active winery.
type WineryCount struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Wines         int        `json:"wines"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
}

// Finding points at a single suspicious wine.
type Finding struct {
	WineID     int64               `json:"wine_id"`
	Winery     string              `json:"winery"`
	Wine       string              `json:"wine"`
	Vintage    string              `json:"vintage,omitempty"`
	Price      decimal.NullDecimal `json:"price"`
	ProductURL string              `json:"product_url,omitempty"`
}

// Duplicate is a group of available wines of one winery sharing a
// normalized name and vintage.
type Duplicate struct {
	Winery  string `json:"winery"`
	Wine    string `json:"wine"`
	Vintage string `json:"vintage,omitempty"`
	Count   int    `json:"count"`
}

// Report is the outcome of Verify.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	Wineries           []WineryCount `json:"wineries"`
	TotalWines         int           `json:"total_wines"`
	WithWines          int           `json:"wineries_with_wines"`
	EmptyWineries      []string      `json:"empty_wineries,omitempty"`
	LowWineries        []WineryCount `json:"low_wineries,omitempty"`
	NeverScraped       []string      `json:"never_scraped,omitempty"`
	StaleWineries      []WineryCount `json:"stale_wineries,omitempty"`
	SuspiciousVintages []Finding     `json:"suspicious_vintages,omitempty"`
	Duplicates         []Duplicate   `json:"duplicates,omitempty"`

	MissingPrice       int `json:"missing_price"`
	MissingVariety     int `json:"missing_variety"`
	MissingVintage     int `json:"missing_vintage"`
	MissingDescription int `json:"missing_description"`

	LowPrices  []Finding           `json:"low_prices,omitempty"`
	HighPrices []Finding           `json:"high_prices,omitempty"`
	MinPrice   decimal.NullDecimal `json:"min_price"`
	MaxPrice   decimal.NullDecimal `json:"max_price"`
	AvgPrice   decimal.NullDecimal `json:"avg_price"`

	Coverage float64 `json:"coverage"` // percent of active wineries with wines
	Grade    string  `json:"grade"`
}

// Verify inspects every available wine of the active wineries.
func Verify(ctx context.Context, st store.Store, now time.Time) (*Report, error) {
	wineries, err := st.ListWineries(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "quality: list wineries")
	}

	rep := &Report{GeneratedAt: now}
	var priced []Finding
	sum := decimal.Zero

	for _, w := range wineries {
		wines, err := st.ListWinesByWinery(ctx, w.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "quality: list wines of winery %d", w.ID)
		}

		wc := WineryCount{ID: w.ID, Name: w.Name, LastScrapedAt: w.LastScrapedAt}
		groups := make(map[[2]string][]model.Wine)
		var order [][2]string

		for _, wine := range wines {
			if !wine.IsAvailable {
				continue
			}
			wc.Wines++
			f := Finding{
				WineID:     wine.ID,
				Winery:     w.Name,
				Wine:       wine.Name,
				Vintage:    wine.Vintage,
				Price:      wine.Price,
				ProductURL: wine.ProductURL,
			}

			if suspiciousVintage(wine.Vintage, now.Year()) {
				rep.SuspiciousVintages = append(rep.SuspiciousVintages, f)
			}

			key := [2]string{model.NormalizeName(wine.Name), wine.Vintage}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], wine)

			if !wine.Price.Valid || !wine.Price.Decimal.IsPositive() {
				rep.MissingPrice++
			} else {
				priced = append(priced, f)
				sum = sum.Add(wine.Price.Decimal)
			}
			if wine.Variety == "" {
				rep.MissingVariety++
			}
			if wine.Vintage == "" {
				rep.MissingVintage++
			}
			if wine.Description == "" {
				rep.MissingDescription++
			}
		}

		for _, key := range order {
			if g := groups[key]; len(g) > 1 {
				rep.Duplicates = append(rep.Duplicates, Duplicate{Winery: w.Name, Wine: g[0].Name, Vintage: key[1], Count: len(g)})
			}
		}

		rep.Wineries = append(rep.Wineries, wc)
		rep.TotalWines += wc.Wines
		switch {
		case wc.Wines == 0:
			rep.EmptyWineries = append(rep.EmptyWineries, w.Name)
		case wc.Wines < lowWineCount:
			rep.LowWineries = append(rep.LowWineries, wc)
		}
		if wc.Wines > 0 {
			rep.WithWines++
		}

		switch {
		case w.LastScrapedAt == nil:
			rep.NeverScraped = append(rep.NeverScraped, w.Name)
		case now.Sub(*w.LastScrapedAt) > staleAfter:
			rep.StaleWineries = append(rep.StaleWineries, wc)
		}
	}

	rep.priceStats(priced, sum)
	if len(wineries) > 0 {
		rep.Coverage = float64(rep.WithWines) / float64(len(wineries)) * 100
	}
	rep.Grade = grade(rep.Coverage, rep.TotalWines)
	return rep, nil
}

// suspiciousVintage reports numeric vintages older than 2000 or later
// than the current year. NV and empty vintages are fine.
func suspiciousVintage(vintage string, currentYear int) bool {
	year, err := strconv.Atoi(vintage)
	if err != nil {
		return false
	}
	return year < oldestPlausibleVintage || year > currentYear
}

func (r *Report) priceStats(priced []Finding, sum decimal.Decimal) {
	if len(priced) == 0 {
		return
	}
	sort.SliceStable(priced, func(i, j int) bool {
		return priced[i].Price.Decimal.LessThan(priced[j].Price.Decimal)
	})

	r.MinPrice = priced[0].Price
	r.MaxPrice = priced[len(priced)-1].Price
	r.AvgPrice = decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(int64(len(priced)))).Round(2))

	for _, f := range priced {
		if !f.Price.Decimal.LessThan(LowPrice) || len(r.LowPrices) == priceSampleSize {
			break
		}
		r.LowPrices = append(r.LowPrices, f)
	}
	for i := len(priced) - 1; i >= 0; i-- {
		f := priced[i]
		if !f.Price.Decimal.GreaterThan(HighPrice) || len(r.HighPrices) == priceSampleSize {
			break
		}
		r.HighPrices = append(r.HighPrices, f)
	}
}

func grade(coverage float64, wines int) string {
	switch {
	case coverage >= 90 && wines >= 500:
		return GradeProductionReady
	case coverage >= 80 && wines >= 400:
		return GradeGood
	case coverage >= 70:
		return GradeFair
	default:
		return GradeNeedsWork
	}
}
