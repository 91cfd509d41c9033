package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/winery-catalog/internal/model"
)

// Summary aggregates a ScrapeAll pass.
type Summary struct {
	Wineries int `json:"wineries"`
	Complete int `json:"complete"`
	Empty    int `json:"empty"`
	Failed   int `json:"failed"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Retired  int `json:"retired"`
	Flagged  int `json:"flagged"`
}

func (s *Summary) add(out *Outcome, err error) {
	if err != nil || out == nil || out.Run == nil {
		s.Failed++
		return
	}
	switch out.Run.Status {
	case model.RunStatusComplete:
		s.Complete++
	case model.RunStatusEmpty:
		s.Empty++
	default:
		s.Failed++
	}
	s.Inserted += out.Run.Inserted
	s.Updated += out.Run.Updated
	s.Retired += out.Run.Retired
	s.Flagged += out.Run.Flagged
}

// ScrapeAll runs ScrapeAndSave for every active winery with at most
// workers scrapes in flight. A failing winery is logged and counted; it
// never stops the others. The returned error is only set when the
// wineries cannot be listed or ctx is cancelled.
func (p *Pipeline) ScrapeAll(ctx context.Context, workers int) (*Summary, error) {
	wineries, err := p.store.ListWineries(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list wineries")
	}
	if workers < 1 {
		workers = 1
	}

	zap.L().Info("pipeline: scraping all wineries",
		zap.Int("wineries", len(wineries)),
		zap.Int("workers", workers),
	)

	sum := &Summary{Wineries: len(wineries)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, w := range wineries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := p.ScrapeAndSave(gctx, w.ID)
			if err != nil {
				zap.L().Error("pipeline: winery failed",
					zap.Int64("winery_id", w.ID),
					zap.String("winery", w.Name),
					zap.Error(err),
				)
			}
			mu.Lock()
			sum.add(out, err)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sum, eris.Wrap(err, "pipeline: scrape all")
	}
	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "pipeline: scrape all interrupted")
	}

	zap.L().Info("pipeline: scrape all complete",
		zap.Int("complete", sum.Complete),
		zap.Int("empty", sum.Empty),
		zap.Int("failed", sum.Failed),
		zap.Int("inserted", sum.Inserted),
		zap.Int("retired", sum.Retired),
	)
	return sum, nil
}

func formatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return ""
	}
	return p.Decimal.StringFixed(2)
}
