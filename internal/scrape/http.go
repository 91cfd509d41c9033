package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultUserAgent    = "Mozilla/5.0 (compatible; WineryCatalogBot/1.0)"
	defaultMaxBodyBytes = 2 * 1024 * 1024
	minBodyBytes        = 100
)

// HTTPOptions configures an HTTPRenderer.
type HTTPOptions struct {
	UserAgent    string
	Locale       string // sent as Accept-Language
	MaxBodyBytes int64
}

// HTTPRenderer fetches HTML via net/http and rejects anti-bot pages. It does
// not execute JavaScript, so it suits server-rendered shops only.
type HTTPRenderer struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPRenderer creates an HTTPRenderer with sensible defaults.
func NewHTTPRenderer(opts HTTPOptions) *HTTPRenderer {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &HTTPRenderer{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		opts: opts,
	}
}

func (h *HTTPRenderer) Name() string { return "http" }
func (h *HTTPRenderer) Close() error { return nil }

// Render fetches a URL and checks it for blocks. settle is ignored since
// nothing runs client-side.
func (h *HTTPRenderer) Render(ctx context.Context, targetURL string, _ time.Duration) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", h.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if h.opts.Locale != "" {
		req.Header.Set("Accept-Language", h.opts.Locale)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.opts.MaxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("http: blocked (%s)", blockType)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	if len(body) < minBodyBytes {
		return nil, eris.New("http: empty page")
	}

	return &Page{
		URL:        targetURL,
		HTML:       body,
		StatusCode: resp.StatusCode,
		Source:     "http",
	}, nil
}
