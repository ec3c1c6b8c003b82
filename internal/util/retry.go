package util

import (
	"context"
	"errors"
	"time"
)

// Permanent marks an error as not worth retrying. RetryErrWithContext and
// RetryWithContext return it unwrapped on the first occurrence.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

func isTerminal(err error) (error, bool) {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err, true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, true
	}
	return err, false
}

// Backoff is the delay before attempt i+1 (i starts at 0). A nil Backoff retries immediately.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff doubles base on every attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt > 30 {
			return max
		}
		d := base << attempt
		if d <= 0 || d > max {
			return max
		}
		return d
	}
}

func wait(ctx context.Context, backoff Backoff, attempt int) error {
	if backoff == nil {
		return ctx.Err()
	}
	timer := time.NewTimer(backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryErr calls fn up to maxTries times until it returns nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func RetryErr(maxTries int, fn func() error) error {
	return RetryErrWithContext(context.Background(), maxTries, nil, func(context.Context) error {
		return fn()
	})
}

// RetryErrWithContext calls fn up to maxTries times until it returns nil,
// a Permanent error, or ctx is done.
func RetryErrWithContext(ctx context.Context, maxTries int, backoff Backoff, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, maxTries, backoff, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithContext calls fn up to maxTries times until it returns a nil error,
// or until ctx is done. If maxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, maxTries int, backoff Backoff, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if terminal, ok := isTerminal(err); ok {
			return zero, terminal
		}
		lastErr = err
		if i < maxTries-1 {
			if werr := wait(ctx, backoff, i); werr != nil {
				return zero, werr
			}
		}
	}
	return zero, lastErr
}
