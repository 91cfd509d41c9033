package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/winery-catalog/internal/config"
	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/metrics"
	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/rules"
	"github.com/sells-group/winery-catalog/internal/scrape"
	"github.com/sells-group/winery-catalog/internal/store"
)

// stubScraper returns a canned result per winery id.
type stubScraper struct {
	mu      sync.Mutex
	results map[int64]*scrape.Result
	calls   []int64
}

func (s *stubScraper) Scrape(_ context.Context, w model.Winery) *scrape.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, w.ID)
	if r, ok := s.results[w.ID]; ok {
		return r
	}
	return &scrape.Result{WineryID: w.ID, State: scrape.StateDone}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testConfig() *config.Config {
	return &config.Config{Review: config.ReviewConfig{DefaultStatus: "pending"}}
}

func addWinery(t *testing.T, st store.Store, name, shopURL string) *model.Winery {
	t.Helper()
	w := &model.Winery{Name: name, Slug: model.NormalizeName(name), ShopURL: shopURL, IsActive: true}
	require.NoError(t, st.CreateWinery(context.Background(), w))
	return w
}

func rawWine(wineryID int64, name, price string) model.RawWine {
	return model.RawWine{
		WineryID:    wineryID,
		Name:        name,
		Variety:     "Shiraz",
		Vintage:     "2021",
		Price:       decimal.NewNullDecimal(decimal.RequireFromString(price)),
		Description: "Plum and pepper with fine tannins.",
		ProductURL:  "https://shop.example.com/product/" + name,
	}
}

func done(wineryID int64, wines ...model.RawWine) *scrape.Result {
	return &scrape.Result{WineryID: wineryID, State: scrape.StateDone, Wines: wines}
}

func TestScrapeAndSave_InsertsThenReconciles(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	w := addWinery(t, st, "Example Estate", "https://shop.example.com/wines")

	sc := &stubScraper{results: map[int64]*scrape.Result{
		w.ID: done(w.ID, rawWine(w.ID, "Shiraz", "35"), rawWine(w.ID, "Merlot", "30")),
	}}
	m := metrics.New(prometheus.NewRegistry(), "test")
	p := New(testConfig(), st, sc, m)

	out, err := p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, out.Run.Status)
	assert.Equal(t, 2, out.Run.Inserted)
	assert.Equal(t, 2, out.Run.Found)

	wines, err := st.ListWinesByWinery(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, wines, 2)
	for _, wine := range wines {
		assert.Equal(t, model.WineStatusPending, wine.Status)
		assert.True(t, wine.IsAvailable)
	}

	// Second scrape: Shiraz price rises, Merlot disappears, Viognier is new.
	sc.results[w.ID] = done(w.ID, rawWine(w.ID, "SHIRAZ", "38"), rawWine(w.ID, "Viognier", "42"))
	out, err = p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Run.Inserted)
	assert.Equal(t, 1, out.Run.Updated)
	assert.Equal(t, 1, out.Run.Retired)
	assert.Equal(t, 1, out.Changes.PriceChanges())

	wines, err = st.ListWinesByWinery(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, wines, 3)
	byName := map[string]model.Wine{}
	for _, wine := range wines {
		byName[wine.Name] = wine
	}
	assert.True(t, byName["Shiraz"].Price.Decimal.Equal(decimal.NewFromInt(38)), "stored name casing is kept")
	assert.False(t, byName["Merlot"].IsAvailable)
	assert.True(t, byName["Viognier"].IsAvailable)

	winery, err := st.GetWinery(ctx, w.ID)
	require.NoError(t, err)
	assert.NotNil(t, winery.LastScrapedAt)

	runs, err := st.ListScrapeRuns(ctx, w.ID, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScrapeRuns.WithLabelValues("complete")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReconcileRows.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRows.WithLabelValues("retired")))
}

func TestScrapeAndSave_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	w := addWinery(t, st, "Example Estate", "https://shop.example.com/wines")

	sc := &stubScraper{results: map[int64]*scrape.Result{
		w.ID: done(w.ID, rawWine(w.ID, "Shiraz", "35"), rawWine(w.ID, "Merlot", "30")),
	}}
	p := New(testConfig(), st, sc, nil)

	_, err := p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)
	out, err := p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)

	assert.Zero(t, out.Run.Inserted)
	assert.Zero(t, out.Run.Updated)
	assert.Zero(t, out.Run.Retired)
	assert.Equal(t, 2, out.Run.Unchanged)
	assert.True(t, out.Changes.Empty())
}

func TestScrapeAndSave_FailedScrapeLeavesCatalog(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	w := addWinery(t, st, "Example Estate", "https://shop.example.com/wines")

	sc := &stubScraper{results: map[int64]*scrape.Result{w.ID: done(w.ID, rawWine(w.ID, "Shiraz", "35"))}}
	p := New(testConfig(), st, sc, nil)
	_, err := p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)

	sc.results[w.ID] = &scrape.Result{
		WineryID: w.ID,
		State:    scrape.StateFailed,
		Errors:   []string{"timeout loading page: https://shop.example.com/wines"},
	}
	out, err := p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, out.Run.Status)
	assert.Nil(t, out.Changes)

	wines, err := st.ListWinesByWinery(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, wines, 1)
	assert.True(t, wines[0].IsAvailable)

	runs, err := st.ListScrapeRuns(ctx, w.ID, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, []string{"timeout loading page: https://shop.example.com/wines"}, runs[0].Errors)
}

func TestScrapeAndSave_EmptyScrapeRetiresNothing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	w := addWinery(t, st, "Example Estate", "https://shop.example.com/wines")

	sc := &stubScraper{results: map[int64]*scrape.Result{w.ID: done(w.ID, rawWine(w.ID, "Shiraz", "35"))}}
	p := New(testConfig(), st, sc, nil)
	_, err := p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)

	sc.results[w.ID] = done(w.ID)
	out, err := p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusEmpty, out.Run.Status)

	wines, err := st.ListWinesByWinery(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, wines, 1)
	assert.True(t, wines[0].IsAvailable)
}

func TestScrapeAndSave_TriageFlagsPersisted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	w := addWinery(t, st, "Example Estate", "https://shop.example.com/wines")

	flagged := rawWine(w.ID, "Museum Release Shiraz", "650")
	flagged.Description = ""
	sc := &stubScraper{results: map[int64]*scrape.Result{w.ID: done(w.ID, flagged)}}
	p := New(testConfig(), st, sc, nil)

	out, err := p.ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Run.Flagged)

	wines, err := st.ListWinesByWinery(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, wines, 1)
	assert.Equal(t, []string{"Price unusually high", "Missing description"}, wines[0].ReviewFlags)
}

func TestScrapeAndSave_DefaultStatusLive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	w := addWinery(t, st, "Example Estate", "https://shop.example.com/wines")

	cfg := testConfig()
	cfg.Review.DefaultStatus = "live"
	sc := &stubScraper{results: map[int64]*scrape.Result{w.ID: done(w.ID, rawWine(w.ID, "Shiraz", "35"))}}
	_, err := New(cfg, st, sc, nil).ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)

	wines, _, err := st.ListWines(ctx, model.PublicFilter(model.WineFilter{}))
	require.NoError(t, err)
	assert.Len(t, wines, 1)
}

func TestScrapeAndSave_UnknownWinery(t *testing.T) {
	st := newTestStore(t)
	p := New(testConfig(), st, &stubScraper{}, nil)

	_, err := p.ScrapeAndSave(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestDryRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	w := addWinery(t, st, "Example Estate", "https://shop.example.com/wines")

	sc := &stubScraper{results: map[int64]*scrape.Result{w.ID: done(w.ID, rawWine(w.ID, "Shiraz", "35"))}}
	res, err := New(testConfig(), st, sc, nil).DryRun(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, res.Wines, 1)

	wines, err := st.ListWinesByWinery(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, wines)
	runs, err := st.ListScrapeRuns(ctx, w.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestScrapeAll(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := addWinery(t, st, "Alpha Wines", "https://alpha.example.com/shop")
	b := addWinery(t, st, "Bravo Vineyards", "https://bravo.example.com/shop")
	c := addWinery(t, st, "Charlie Cellars", "https://charlie.example.com/shop")
	inactive := &model.Winery{Name: "Dormant", Slug: "dormant", ShopURL: "https://dormant.example.com"}
	require.NoError(t, st.CreateWinery(ctx, inactive))

	sc := &stubScraper{results: map[int64]*scrape.Result{
		a.ID: done(a.ID, rawWine(a.ID, "Shiraz", "35"), rawWine(a.ID, "Merlot", "30")),
		b.ID: {WineryID: b.ID, State: scrape.StateFailed, Errors: []string{"timeout"}},
		c.ID: done(c.ID),
	}}
	p := New(testConfig(), st, sc, nil)

	sum, err := p.ScrapeAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Wineries)
	assert.Equal(t, 1, sum.Complete)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Empty)
	assert.Equal(t, 2, sum.Inserted)
	assert.ElementsMatch(t, []int64{a.ID, b.ID, c.ID}, sc.calls)
}

func TestScrapeAll_Cancelled(t *testing.T) {
	st := newTestStore(t)
	addWinery(t, st, "Alpha Wines", "https://alpha.example.com/shop")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := &stubScraper{}
	_, err := New(testConfig(), st, sc, nil).ScrapeAll(ctx, 1)
	require.Error(t, err)
	assert.Empty(t, sc.calls)
}

// mapRenderer serves fixed HTML by URL.
type mapRenderer map[string]string

func (m mapRenderer) Render(_ context.Context, url string, _ time.Duration) (*scrape.Page, error) {
	html, ok := m[url]
	if !ok {
		return nil, eris.Errorf("no page for %s", url)
	}
	return &scrape.Page{URL: url, HTML: []byte(html), StatusCode: 200, Source: "map"}, nil
}

func (mapRenderer) Name() string { return "map" }
func (mapRenderer) Close() error { return nil }

func TestScrapeAndSave_WithScraper(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	w := addWinery(t, st, "Example Estate", "https://shop.example.com/wines")

	pages := mapRenderer{
		"https://shop.example.com/wines": `<html><body><ul class="products">
			<li><a href="/product/shiraz-2021/">Shiraz 2021</a></li>
			<li><a href="/product/estate-riesling/">Estate Riesling</a></li>
			</ul></body></html>`,
		"https://shop.example.com/product/shiraz-2021/": `<html><body>
			<h1 class="product_title">Shiraz 2021</h1><p class="price">$35.00</p>
			<div class="description">Deep purple with plum and pepper, fine tannins and a long finish.</div>
			</body></html>`,
		"https://shop.example.com/product/estate-riesling/": `<html><body>
			<h1>Estate Riesling</h1><span class="price">$28</span></body></html>`,
	}
	sc := scrape.New(pages, extract.New(rules.Default()), scrape.Options{
		ListingTimeout: time.Second,
		ProductTimeout: time.Second,
	})

	out, err := New(testConfig(), st, sc, nil).ScrapeAndSave(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Run.Inserted)

	wines, err := st.ListWinesByWinery(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, wines, 2)
	assert.Equal(t, "Shiraz", wines[0].Name)
	assert.Equal(t, "2021", wines[0].Vintage)
	assert.True(t, wines[0].Price.Decimal.Equal(decimal.NewFromInt(35)))
	assert.Equal(t, "https://shop.example.com/product/shiraz-2021/", wines[0].ProductURL)
}
