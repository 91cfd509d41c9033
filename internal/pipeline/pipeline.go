package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/winery-catalog/internal/config"
	"github.com/sells-group/winery-catalog/internal/metrics"
	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/reconcile"
	"github.com/sells-group/winery-catalog/internal/scrape"
	"github.com/sells-group/winery-catalog/internal/store"
)

// Scraper extracts the wine records of one winery.
type Scraper interface {
	Scrape(ctx context.Context, w model.Winery) *scrape.Result
}

// Pipeline scrapes wineries and reconciles the results into the store.
type Pipeline struct {
	store         store.Store
	scraper       Scraper
	metrics       *metrics.Metrics
	defaultStatus model.WineStatus
	now           func() time.Time
}

// New creates a Pipeline. m may be nil.
func New(cfg *config.Config, st store.Store, scraper Scraper, m *metrics.Metrics) *Pipeline {
	status, err := model.ParseWineStatus(cfg.Review.DefaultStatus)
	if err != nil {
		status = model.WineStatusPending
	}
	return &Pipeline{
		store:         st,
		scraper:       scraper,
		metrics:       m,
		defaultStatus: status,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Outcome is the result of one scrape-and-save invocation.
type Outcome struct {
	Winery  model.Winery
	Run     *model.ScrapeRun
	Scrape  *scrape.Result
	Changes *model.ChangeSet // nil when nothing was reconciled
}

// ScrapeAndSave scrapes one winery and reconciles the result into the
// store in a single transaction. A listing failure or an empty scrape is
// recorded as a run and leaves the catalog untouched; only store failures
// are returned as errors.
func (p *Pipeline) ScrapeAndSave(ctx context.Context, wineryID int64) (*Outcome, error) {
	w, err := p.store.GetWinery(ctx, wineryID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load winery %d", wineryID)
	}
	log := zap.L().With(zap.Int64("winery_id", w.ID), zap.String("winery", w.Name))

	run := &model.ScrapeRun{WineryID: w.ID, StartedAt: p.now()}
	if err := p.store.CreateScrapeRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create scrape run")
	}
	out := &Outcome{Winery: *w, Run: run}

	log.Info("pipeline: scraping winery", zap.String("shop_url", w.ShopURL))
	res := p.scraper.Scrape(ctx, *w)
	out.Scrape = res
	run.Found = len(res.Wines)
	run.Errors = res.Errors

	switch {
	case res.Failed():
		run.Status = model.RunStatusFailed
		log.Warn("pipeline: scrape failed", zap.Strings("errors", res.Errors))
		return out, p.finish(ctx, run)
	case len(res.Wines) == 0:
		run.Status = model.RunStatusEmpty
		log.Warn("pipeline: scrape yielded no wines, catalog left unchanged",
			zap.Int("product_urls", res.ProductURLs),
			zap.Int("errors", len(res.Errors)),
		)
		return out, p.finish(ctx, run)
	}

	existing, err := p.store.ListWinesByWinery(ctx, w.ID)
	if err != nil {
		return out, p.abort(ctx, run, eris.Wrap(err, "pipeline: load stored wines"))
	}

	cs := reconcile.Plan(w.ID, res.Wines, existing, p.defaultStatus, p.now())
	if err := p.store.ApplyChanges(ctx, cs); err != nil {
		return out, p.abort(ctx, run, eris.Wrap(err, "pipeline: apply changes"))
	}
	out.Changes = cs
	logChanges(log, cs)

	run.Status = model.RunStatusComplete
	run.Inserted = len(cs.Inserts)
	run.Retired = len(cs.Retired)
	run.Flagged = cs.Flagged
	for _, u := range cs.Updates {
		if u.PriceChanged || !u.WasAvailable {
			run.Updated++
		} else {
			run.Unchanged++
		}
	}
	p.metrics.ObserveChanges(cs)

	log.Info("pipeline: winery saved",
		zap.Int("found", run.Found),
		zap.Int("inserted", run.Inserted),
		zap.Int("updated", run.Updated),
		zap.Int("unchanged", run.Unchanged),
		zap.Int("retired", run.Retired),
		zap.Int("flagged", run.Flagged),
		zap.Int("errors", len(run.Errors)),
	)
	return out, p.finish(ctx, run)
}

// DryRun scrapes one winery without touching the store.
func (p *Pipeline) DryRun(ctx context.Context, wineryID int64) (*scrape.Result, error) {
	w, err := p.store.GetWinery(ctx, wineryID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load winery %d", wineryID)
	}
	return p.scraper.Scrape(ctx, *w), nil
}

// finish records the run even when ctx has been cancelled.
func (p *Pipeline) finish(ctx context.Context, run *model.ScrapeRun) error {
	now := p.now()
	run.FinishedAt = &now
	p.metrics.ObserveRun(run)
	if err := p.store.CompleteScrapeRun(context.WithoutCancel(ctx), run); err != nil {
		return eris.Wrap(err, "pipeline: complete scrape run")
	}
	return nil
}

// abort marks the run failed with cause and returns cause.
func (p *Pipeline) abort(ctx context.Context, run *model.ScrapeRun, cause error) error {
	run.Status = model.RunStatusFailed
	run.Errors = append(run.Errors, cause.Error())
	if err := p.finish(ctx, run); err != nil {
		zap.L().Warn("pipeline: failed to record aborted run", zap.String("run_id", run.ID), zap.Error(err))
	}
	return cause
}

func logChanges(log *zap.Logger, cs *model.ChangeSet) {
	for _, u := range cs.Updates {
		if u.PriceChanged {
			fields := []zap.Field{
				zap.Int64("wine_id", u.WineID),
				zap.String("wine", u.Name),
				zap.String("old_price", formatPrice(u.OldPrice)),
				zap.String("new_price", formatPrice(u.NewPrice)),
			}
			if u.OldPrice.Valid && u.NewPrice.Valid {
				fields = append(fields, zap.String("delta", u.NewPrice.Decimal.Sub(u.OldPrice.Decimal).StringFixed(2)))
			}
			log.Info("pipeline: price changed", fields...)
		}
		if len(u.ReviewFlags) > 0 {
			log.Info("pipeline: wine flagged for review", zap.String("wine", u.Name), zap.Strings("reasons", u.ReviewFlags))
		}
	}
	for _, w := range cs.Inserts {
		log.Info("pipeline: new wine", zap.String("wine", w.Name), zap.String("price", formatPrice(w.Price)))
		if len(w.ReviewFlags) > 0 {
			log.Info("pipeline: wine flagged for review", zap.String("wine", w.Name), zap.Strings("reasons", w.ReviewFlags))
		}
	}
	for _, w := range cs.Retired {
		log.Info("pipeline: wine no longer listed", zap.Int64("wine_id", w.ID), zap.String("wine", w.Name))
	}
}
