package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// PageLoadError records a page that could not be rendered. Listing page
// failures abort a winery scrape; product page failures skip one product.
type PageLoadError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *PageLoadError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("timeout loading page: %s", e.URL)
	}
	return fmt.Sprintf("error loading page %s: %v", e.URL, e.Err)
}

func (e *PageLoadError) Unwrap() error {
	return e.Err
}

// newPageLoadError wraps err for url, classifying timeouts.
func newPageLoadError(url string, err error) *PageLoadError {
	return &PageLoadError{URL: url, Timeout: IsTimeout(err), Err: err}
}

// IsTimeout returns true if the error (or any error in its chain) is a
// deadline or network timeout, including the string forms produced by
// browser automation and wrapped HTTP client errors.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	var ple *PageLoadError
	if errors.As(err, &ple) && ple.Timeout {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"deadline exceeded",
		"i/o timeout",
		"tls handshake timeout",
		"net::err_timed_out",
		"timeout awaiting response headers",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
