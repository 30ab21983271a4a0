package nlp

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig holds configuration for retry behavior. Every failure kind is
// retried the same way: a fixed delay between attempts on the same backend.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first (default: 3)
	MaxAttempts int
	// Delay is the fixed wait between attempts (default: 2 seconds)
	Delay time.Duration
	// Timeout bounds each individual attempt (default: 120 seconds, 0 disables)
	Timeout time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
		Timeout:     120 * time.Second,
	}
}

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 1
	}
	if r.Delay < 0 {
		r.Delay = 0
	}
	if r.Timeout < 0 {
		r.Timeout = 0
	}
	return r
}

// do runs fn up to MaxAttempts times. Each attempt gets its own timeout
// derived from ctx. Cancellation of ctx ends the loop early.
// onFailure is called after every failed attempt.
func (r RetryConfig) do(ctx context.Context, fn func(ctx context.Context) error, onFailure func(attempt int, err error)) (int, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, r.Delay); err != nil {
				break
			}
		}

		attempts = attempt
		lastErr = r.attempt(ctx, fn)
		if lastErr == nil {
			return attempts, nil
		}
		if onFailure != nil {
			onFailure(attempt, lastErr)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("retry aborted before first attempt: %w", ctx.Err())
	}
	return attempts, lastErr
}

func (r RetryConfig) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
