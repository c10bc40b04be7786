// Package retry wraps a fallible call with exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
)

// Policy bounds the attempts of Do.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter adds up to 10% random delay to each wait.
	Jitter bool
	// Retryable overrides apierr.IsRetryable.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// DefaultPolicy matches the structured generation path: 3 attempts, 2 s base.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second}

var sleepFn = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delay is the wait after the failed attempt with the given 0-based index.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay << attempt
	if p.Jitter && d > 0 {
		d += time.Duration(rand.Int64N(int64(d)/10 + 1))
	}
	return d
}

// Do calls op until it succeeds, fails terminally or runs out of attempts. The
// last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = apierr.IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}
		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts-1 {
			break
		}
		wait := p.Delay(attempt)
		var ae *apierr.Error
		if errors.As(err, &ae) && ae.RetryAfter > wait {
			wait = ae.RetryAfter
		}
		if p.Logger != nil {
			p.Logger.Warn("retrying", "attempt", attempt+1, "max_attempts", attempts, "wait", wait, "error", err)
		}
		if err := sleepFn(ctx, wait); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}
