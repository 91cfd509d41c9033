package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/winery-catalog/internal/config"
	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/rules"
)

// State is a step of a winery scrape.
type State string

const (
	StateIdle            State = "idle"
	StateLoadingListing  State = "loading_listing"
	StateDiscovering     State = "discovering"
	StateScrapingProduct State = "scraping_product"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Options holds the per-page limits of a Scraper.
type Options struct {
	ListingTimeout time.Duration
	ProductTimeout time.Duration
	ListingSettle  time.Duration
	ProductSettle  time.Duration
	// ProductDelay is the minimum interval between product page loads.
	ProductDelay time.Duration
	// Retry applies to every page load, listing and product alike.
	Retry RetryPolicy
}

// OptionsFromConfig maps render and scrape settings onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ListingTimeout: cfg.Render.ListingTimeout(),
		ProductTimeout: cfg.Render.ProductTimeout(),
		ListingSettle:  time.Duration(cfg.Render.ListingSettleMs) * time.Millisecond,
		ProductSettle:  time.Duration(cfg.Render.ProductSettleMs) * time.Millisecond,
		ProductDelay:   time.Duration(cfg.Scrape.ProductDelayMs) * time.Millisecond,
		Retry: RetryPolicy{
			Attempts:       cfg.Render.Retries + 1,
			InitialBackoff: time.Duration(cfg.Render.RetryBackoffMs) * time.Millisecond,
			Jitter:         0.25,
		},
	}
}

// Result is the outcome of scraping one winery.
type Result struct {
	WineryID int64
	State    State
	Site     string // site override rule applied, "" for generic
	Mode     string
	Selector string // selector that yielded product links or cards
	// ProductURLs is the number of product pages discovered.
	ProductURLs int
	// Skipped counts products that yielded no valid record.
	Skipped int
	Wines   []model.RawWine
	Errors  []string
}

// Failed reports whether the listing page could not be loaded.
func (r *Result) Failed() bool {
	return r.State == StateFailed
}

// Scraper runs the per-winery scrape: load the listing page, discover
// product links, then visit each product page in turn. Scrapers hold no
// per-winery state and may be shared by concurrent scrapes of different
// wineries.
type Scraper struct {
	renderer Renderer
	ex       *extract.Extractor
	exclude  *PathMatcher
	opts     Options
}

// New creates a Scraper.
func New(renderer Renderer, ex *extract.Extractor, opts Options) *Scraper {
	return &Scraper{
		renderer: renderer,
		ex:       ex,
		exclude:  NewPathMatcher(ex.Rules().ExcludePaths),
		opts:     opts,
	}
}

// Scrape extracts the validated wine records of one winery. Page load
// failures never surface as a returned error: a listing failure yields an
// empty, failed result with one error, and a product failure is recorded
// while the remaining products are still visited.
func (s *Scraper) Scrape(ctx context.Context, w model.Winery) *Result {
	log := zap.L().With(zap.Int64("winery_id", w.ID), zap.String("winery", w.Name))
	profile := s.ex.Rules().ProfileFor(w.ShopURL)

	res := &Result{WineryID: w.ID, State: StateIdle, Site: profile.Site, Mode: profile.Mode}
	if res.Mode == "" {
		res.Mode = rules.ModeProduct
	}
	fail := func(msg string) *Result {
		res.State = StateFailed
		res.Errors = append(res.Errors, msg)
		log.Warn("scrape: winery failed", zap.String("error", msg))
		return res
	}

	base, err := url.Parse(w.ShopURL)
	if err != nil || base.Host == "" {
		return fail(fmt.Sprintf("invalid shop url %q", w.ShopURL))
	}

	res.State = StateLoadingListing
	doc, err := s.load(ctx, w.ShopURL, s.opts.ListingTimeout, s.opts.ListingSettle)
	if err != nil {
		return fail(err.Error())
	}

	res.State = StateDiscovering
	if res.Mode == rules.ModeListing {
		records, sel := parseListingCards(s.ex, doc, base, w.ID)
		res.Selector = sel
		for _, rec := range records {
			res.keep(log, rec)
		}
		res.State = StateDone
		log.Info("scrape: listing cards parsed",
			zap.String("selector", sel),
			zap.Int("wines", len(res.Wines)),
			zap.Int("skipped", res.Skipped),
		)
		return res
	}

	urls, sel := DiscoverProductURLs(doc, base, profile.LinkSelectors, s.exclude)
	res.Selector = sel
	res.ProductURLs = len(urls)
	if len(urls) == 0 {
		res.State = StateDone
		log.Info("scrape: no product links found")
		return res
	}
	log.Debug("scrape: product links discovered", zap.String("selector", sel), zap.Int("count", len(urls)))

	parser := newProductParser(s.ex, profile)
	var limiter *rate.Limiter
	if s.opts.ProductDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.opts.ProductDelay), 1)
	}

	res.State = StateScrapingProduct
	for _, u := range urls {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("scrape interrupted before %s: %v", u, err))
				break
			}
		}
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("scrape interrupted before %s: %v", u, ctx.Err()))
			break
		}

		rec, ok, err := s.scrapeProduct(ctx, parser, u, w.ID)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			log.Warn("scrape: product failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if !ok {
			res.Skipped++
			log.Debug("scrape: no wine on product page", zap.String("url", u))
			continue
		}
		res.keep(log, rec)
	}

	res.State = StateDone
	log.Info("scrape: winery complete",
		zap.String("selector", sel),
		zap.Int("product_urls", res.ProductURLs),
		zap.Int("wines", len(res.Wines)),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)),
	)
	return res
}

// keep appends rec when it validates and counts it as skipped otherwise.
func (r *Result) keep(log *zap.Logger, rec model.RawWine) {
	if err := extract.Validate(rec); err != nil {
		r.Skipped++
		log.Debug("scrape: record rejected", zap.String("name", rec.Name), zap.String("reason", err.Error()))
		return
	}
	r.Wines = append(r.Wines, rec)
}

// scrapeProduct loads and parses one product page. Panics raised while
// walking malformed markup are returned as errors for that product.
func (s *Scraper) scrapeProduct(ctx context.Context, p *productParser, pageURL string, wineryID int64) (rec model.RawWine, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("error parsing page %s: %v", pageURL, r)
		}
	}()

	doc, err := s.load(ctx, pageURL, s.opts.ProductTimeout, s.opts.ProductSettle)
	if err != nil {
		return model.RawWine{}, false, err
	}
	rec, ok = p.parse(doc, pageURL, wineryID)
	return rec, ok, nil
}

// load renders url within timeout and parses the result, retrying
// transient failures according to the retry policy.
func (s *Scraper) load(ctx context.Context, pageURL string, timeout, settle time.Duration) (*goquery.Document, error) {
	var doc *goquery.Document
	err := s.opts.Retry.do(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.loadOnce(ctx, pageURL, timeout, settle)
		return err
	}, func(attempt int, err error) {
		zap.L().Debug("scrape: retrying page load",
			zap.String("url", pageURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Scraper) loadOnce(ctx context.Context, pageURL string, timeout, settle time.Duration) (*goquery.Document, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	page, err := s.renderer.Render(ctx, pageURL, settle)
	if err != nil {
		return nil, newPageLoadError(pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil, newPageLoadError(pageURL, eris.Wrap(err, "scrape: parse html"))
	}
	return doc, nil
}
