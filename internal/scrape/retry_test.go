package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/rules"
)

// flakyRenderer fails the first failures[url] loads of a URL with err.
type flakyRenderer struct {
	fakeRenderer
	mu       sync.Mutex
	failures map[string]int
	err      error
}

func (f *flakyRenderer) Render(ctx context.Context, url string, settle time.Duration) (*Page, error) {
	f.mu.Lock()
	n := f.failures[url]
	if n > 0 {
		f.failures[url] = n - 1
	}
	f.mu.Unlock()

	if n > 0 {
		f.fakeRenderer.mu.Lock()
		f.calls = append(f.calls, url)
		f.fakeRenderer.mu.Unlock()
		return nil, f.err
	}
	return f.fakeRenderer.Render(ctx, url, settle)
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestScraper_RetriesTransientListingFailure(t *testing.T) {
	t.Parallel()
	r := &flakyRenderer{
		fakeRenderer: fakeRenderer{pages: shopPages()},
		failures:     map[string]int{"https://shop.example.com/wines": 1},
		err:          &StatusError{Code: 503},
	}
	opts := testOptions()
	opts.Retry = fastRetry(2)
	s := New(r, extract.New(rules.Default()), opts)

	res := s.Scrape(context.Background(), shopWinery())
	assert.Equal(t, StateDone, res.State)
	assert.Len(t, res.Wines, 2)
	assert.Empty(t, res.Errors)
}

func TestScraper_NoRetryByDefault(t *testing.T) {
	t.Parallel()
	r := &flakyRenderer{
		fakeRenderer: fakeRenderer{pages: shopPages()},
		failures:     map[string]int{"https://shop.example.com/wines": 1},
		err:          &StatusError{Code: 503},
	}
	s := New(r, extract.New(rules.Default()), testOptions())

	res := s.Scrape(context.Background(), shopWinery())
	assert.True(t, res.Failed())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "http: status 503")
	assert.Len(t, r.calls, 1)
}

func TestScraper_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()
	url := "https://shop.example.com/product/shiraz-2021/"
	r := &flakyRenderer{
		fakeRenderer: fakeRenderer{pages: shopPages()},
		failures:     map[string]int{url: 5},
		err:          &StatusError{Code: 404},
	}
	opts := testOptions()
	opts.Retry = fastRetry(3)
	s := New(r, extract.New(rules.Default()), opts)

	res := s.Scrape(context.Background(), shopWinery())
	assert.Equal(t, StateDone, res.State)
	require.Len(t, res.Errors, 1)

	n := 0
	for _, c := range r.calls {
		if c == url {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestRetryPolicy_Do(t *testing.T) {
	t.Parallel()
	transient := &StatusError{Code: 502}

	t.Run("exhausts attempts", func(t *testing.T) {
		calls, retries := 0, 0
		err := fastRetry(3).do(context.Background(), func(context.Context) error {
			calls++
			return transient
		}, func(int, error) { retries++ })
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("stops on success", func(t *testing.T) {
		calls := 0
		err := fastRetry(5).do(context.Background(), func(context.Context) error {
			calls++
			if calls < 2 {
				return transient
			}
			return nil
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("zero attempts tries once", func(t *testing.T) {
		calls := 0
		_ = RetryPolicy{}.do(context.Background(), func(context.Context) error {
			calls++
			return transient
		}, nil)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := fastRetry(5).do(ctx, func(context.Context) error {
			calls++
			cancel()
			return transient
		}, nil)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 300*time.Millisecond, p.backoff(2))

	p.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := p.backoff(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&StatusError{Code: 503}, true},
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 404}, false},
		{newPageLoadError("https://x", &StatusError{Code: 500}), true},
		{newPageLoadError("https://x", context.DeadlineExceeded), true},
		{fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("http: blocked (captcha)"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), "%v", tt.err)
	}
}
