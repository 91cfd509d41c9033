package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// ChromeOptions configures a ChromedpRenderer.
type ChromeOptions struct {
	UserAgent       string
	Locale          string // e.g. "en-AU"
	Timezone        string // IANA name, e.g. "Australia/Sydney"
	DisableHeadless bool
}

// ChromedpRenderer renders pages in headless Chrome so shops built on
// client-side frameworks expose their product markup. One browser process is
// shared; each Render call opens its own tab.
type ChromedpRenderer struct {
	opts ChromeOptions

	once          sync.Once
	startErr      error
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromedpRenderer creates a renderer. The browser starts on first use.
func NewChromedpRenderer(opts ChromeOptions) *ChromedpRenderer {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &ChromedpRenderer{opts: opts}
}

func (c *ChromedpRenderer) Name() string { return "chromedp" }

func (c *ChromedpRenderer) start() {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.UserAgent(c.opts.UserAgent))
	if c.opts.Locale != "" {
		allocOpts = append(allocOpts, chromedp.Flag("lang", c.opts.Locale))
	}
	if c.opts.Timezone != "" {
		allocOpts = append(allocOpts, chromedp.Env("TZ="+c.opts.Timezone))
	}
	if c.opts.DisableHeadless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)

	// Tabs derived from browserCtx share its browser process.
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)
	if err := chromedp.Run(c.browserCtx); err != nil {
		c.browserCancel()
		c.allocCancel()
		c.startErr = eris.Wrap(err, "chromedp: start browser")
	}
}

// Render navigates a fresh tab to targetURL, waits settle for scripts to
// finish, and returns the document's outer HTML.
func (c *ChromedpRenderer) Render(ctx context.Context, targetURL string, settle time.Duration) (*Page, error) {
	c.once.Do(c.start)
	if c.startErr != nil {
		return nil, c.startErr
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, eris.Wrap(err, "chromedp: render")
	}
	if len(html) < minBodyBytes {
		return nil, eris.New("chromedp: empty page")
	}

	return &Page{
		URL:        targetURL,
		HTML:       []byte(html),
		StatusCode: 200,
		Source:     "chromedp",
	}, nil
}

// Close shuts the browser down.
func (c *ChromedpRenderer) Close() error {
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}
