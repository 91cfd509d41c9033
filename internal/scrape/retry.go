package scrape

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"syscall"
	"time"
)

// StatusError is returned by HTTPRenderer for an error HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: status %d", e.Code)
}

// RetryPolicy controls how often a failed page load is tried again.
type RetryPolicy struct {
	// Attempts is the total number of tries including the first.
	// Values below 2 disable retries.
	Attempts int
	// InitialBackoff is the delay before the first retry; it doubles after
	// each further attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter randomises each delay by up to this fraction (0.25 = ±25%).
	Jitter float64
}

// do runs fn until it succeeds, fails with a non-transient error, the
// attempts run out or ctx is done. The last error is returned.
func (p RetryPolicy) do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := max(p.Attempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(lastErr) || attempt == attempts-1 {
			return lastErr
		}
		if onRetry != nil {
			onRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := p.MaxBackoff
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := math.Min(float64(initial)*math.Pow(2, float64(attempt)), float64(maxDelay))
	if p.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.Jitter
	}
	return time.Duration(math.Max(delay, 0))
}

// IsTransient reports whether a page load failure may succeed when tried
// again: timeouts, dropped connections and 408/429/5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case 408, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"server closed idle connection",
		"net::err_connection_reset",
		"net::err_connection_closed",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
