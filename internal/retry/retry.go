// Package retry is a higher-order exponential-backoff wrapper parameterized
// by max attempts, base/max delay, and a caller-chosen error-kind predicate
// (spec §4.3). Grounded on the teacher's internal/httpclient/retry.go
// (DoWithRetry's attempt loop, Retry-After-aware capped backoff) but
// generalized from "retry an HTTP response" to "retry any operation" with a
// caller-chosen predicate. The Enricher uses it to retry HTTP session
// transport errors; the Extractor does not use it.
package retry

import (
	"context"
	"time"
)

// Policy configures a retry loop.
type Policy struct {
	MaxAttempts int           // total attempts, including the first; default 1 (no retry)
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on the exponential backoff
	// ShouldRetry decides whether err warrants another attempt. A nil
	// ShouldRetry retries on any non-nil error.
	ShouldRetry func(err error) bool
}

func (p Policy) delay(attempt int) time.Duration {
	// attempt is 1-based: delay before retrying attempt k is base*2^(k-1).
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if err == nil {
		return false
	}
	if p.ShouldRetry == nil {
		return true
	}
	return p.ShouldRetry(err)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs fn synchronously, retrying per policy on a matching error, and
// sleeping (blocking the goroutine) between attempts. On the final failed
// attempt the error is re-surfaced unchanged.
func Do(ctx context.Context, p Policy, fn func() error) error {
	var lastErr error
	attempts := p.attempts()
	for k := 1; k <= attempts; k++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if k == attempts || !p.retryable(lastErr) {
			return lastErr
		}
		if err := sleepCtx(ctx, p.delay(k)); err != nil {
			return err
		}
	}
	return lastErr
}

// DoValue is Do for operations that also produce a value on success.
func DoValue[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := p.attempts()
	for k := 1; k <= attempts; k++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if k == attempts || !p.retryable(err) {
			return zero, lastErr
		}
		if err := sleepCtx(ctx, p.delay(k)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
