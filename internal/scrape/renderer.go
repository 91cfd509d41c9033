package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/winery-catalog/internal/config"
)

// Page is the rendered HTML of one URL.
type Page struct {
	URL        string
	HTML       []byte
	StatusCode int
	Source     string // e.g. "http", "chromedp"
}

// Renderer loads a URL and returns its HTML after client-side rendering has
// had settle time to run. Timeouts come from ctx; an expired deadline must
// surface as an error that IsTimeout recognises.
type Renderer interface {
	Render(ctx context.Context, url string, settle time.Duration) (*Page, error)
	Name() string
	Close() error
}

// NewRenderer builds the renderer selected by cfg.Engine.
func NewRenderer(cfg config.RenderConfig) (Renderer, error) {
	switch cfg.Engine {
	case "", "http":
		return NewHTTPRenderer(HTTPOptions{
			UserAgent:    cfg.UserAgent,
			Locale:       cfg.Locale,
			MaxBodyBytes: cfg.MaxBodyBytes,
		}), nil
	case "chromedp":
		return NewChromedpRenderer(ChromeOptions{
			UserAgent: cfg.UserAgent,
			Locale:    cfg.Locale,
			Timezone:  cfg.Timezone,
		}), nil
	default:
		return nil, eris.Errorf("scrape: unknown render engine %q", cfg.Engine)
	}
}
