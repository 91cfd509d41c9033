package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping headless Chrome test in short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary on PATH")
}

func TestChromedpRenderer_SharesBrowser(t *testing.T) {
	requireChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	c := NewChromedpRenderer(ChromeOptions{})
	defer c.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := c.Render(ctx, srv.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, "chromedp", page.Source)
	assert.Contains(t, string(page.HTML), "product_title")

	browser := chromedp.FromContext(c.browserCtx).Browser
	require.NotNil(t, browser)

	_, err = c.Render(ctx, srv.URL+"/again", 0)
	require.NoError(t, err)
	assert.Same(t, browser, chromedp.FromContext(c.browserCtx).Browser)
	assert.NoError(t, c.browserCtx.Err())
}
