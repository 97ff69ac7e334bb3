package client

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"
)

// RetryPolicy bounds retries of idempotent calls. The delay before attempt
// n+1 is BaseDelay * 2^(n-1): 300ms, 600ms, ...
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy makes at most three attempts.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 300 * time.Millisecond}

// NoRetry makes exactly one attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do runs fn until it succeeds, fails with a non-retryable error, or runs
// out of attempts. The last error is returned unchanged.
func (p RetryPolicy) do(ctx context.Context, sleep sleepFunc, onRetry func(attempt int, delay time.Duration, err error), fn func(context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= attempts || !retryable(ctx, err) {
			return err
		}

		delay := p.BaseDelay << (attempt - 1)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if sleep(ctx, delay) != nil {
			return err
		}
	}
}

// retryable reports whether err is a network-class failure or a 5xx. 4xx
// responses, a missing token and the caller's own cancellation are final.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrSessionExpired) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
