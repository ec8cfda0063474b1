// Package backoff implements the uniform HTTP retry policy shared by every
// SourceClient call: exponential backoff with jitter, a Retry-After override
// for 429 responses, and a bounded attempt budget.
package backoff

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy bounds: base 1s, factor 2x, cap 60s, max 5 attempts, ±25% jitter.
const (
	Base       = 1 * time.Second
	Cap        = 60 * time.Second
	MaxRetries = 5
	jitterFrac = 0.25
)

// New returns a backoff.Backoff implementing the policy in effect throughout
// the source client: exponential growth from Base, capped at Cap, jittered
// by ±25%, and exhausted after MaxRetries attempts.
func New() retry.Backoff {
	b := retry.NewExponential(Base)
	b = retry.WithCapped(b, Cap)
	b = retry.WithJitterPercent(uint64(jitterFrac*100), b) //nolint:gosec // percentage fits uint64
	b = retry.WithMaxRetries(MaxRetries, b)

	return b
}

// Nth returns the delay the standard policy would use before the attempt'th
// retry (0-indexed), including jitter. Callers that need a single computed
// delay — rather than driving the whole Do loop — use this, e.g. to combine
// it with a server-supplied override such as Retry-After.
func Nth(attempt int) time.Duration {
	b := New()

	var d time.Duration

	for i := 0; i <= attempt; i++ {
		next, stop := b.Next()
		if stop {
			return Cap
		}

		d = next
	}

	return d
}

// Do runs fn under the standard policy. fn returns (retryable bool, err
// error): a non-nil err with retryable=true is retried per the policy; any
// other outcome stops the loop immediately. overrideDelay, when non-zero, is
// slept before the computed backoff, which still follows, so the wait
// before the next attempt is at least the override — used to respect a
// server's Retry-After header.
func Do(ctx context.Context, overrideDelay func(attempt int) time.Duration, fn func(ctx context.Context, attempt int) (retryable bool, err error)) error {
	b := New()
	attempt := 0

	return retry.Do(ctx, b, func(ctx context.Context) error {
		retryable, err := fn(ctx, attempt)
		attempt++

		if err == nil {
			return nil
		}

		if !retryable {
			return fmt.Errorf("backoff: non-retryable: %w", err)
		}

		if overrideDelay != nil {
			if d := overrideDelay(attempt - 1); d > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(d):
				}

				return retry.RetryableError(fmt.Errorf("backoff: retryable after Retry-After: %w", err))
			}
		}

		return retry.RetryableError(fmt.Errorf("backoff: retryable: %w", err))
	})
}
