package main

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/metrics"
	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/pipeline"
	"github.com/sells-group/winery-catalog/internal/rules"
	"github.com/sells-group/winery-catalog/internal/scrape"
	"github.com/sells-group/winery-catalog/internal/store"
)

// initStore opens the configured store and applies migrations. Callers
// should defer st.Close().
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// pipelineEnv holds the store, renderer, metrics and pipeline needed by the
// scrape, scrape-all and schedule commands.
type pipelineEnv struct {
	Store    store.Store
	Renderer scrape.Renderer
	Metrics  *metrics.Metrics
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Renderer != nil {
		_ = pe.Renderer.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline loads the extraction rules, sets up the renderer and store,
// and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	r, err := rules.Load(cfg.Scrape.RulesPath)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	renderer, err := scrape.NewRenderer(cfg.Render)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	m := metrics.New(prometheus.NewRegistry(), cfg.Metrics.Prefix)
	scraper := scrape.New(renderer, extract.New(r), scrape.OptionsFromConfig(cfg))

	zap.L().Debug("pipeline environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("renderer", renderer.Name()),
		zap.Int("varieties", len(r.Varieties)),
		zap.Int("site_rules", len(r.Sites)),
	)

	return &pipelineEnv{
		Store:    st,
		Renderer: renderer,
		Metrics:  m,
		Pipeline: pipeline.New(cfg, st, scraper, m),
	}, nil
}

// resolveWinery looks a winery up by numeric id or, failing that, by slug.
func resolveWinery(ctx context.Context, st store.Store, ref string) (*model.Winery, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return st.GetWinery(ctx, id)
	}
	w, err := st.GetWineryBySlug(ctx, ref)
	if err != nil {
		return nil, eris.Wrapf(err, "winery %q", ref)
	}
	return w, nil
}

// parseID parses a positional wine or winery id.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", s)
	}
	return id, nil
}
