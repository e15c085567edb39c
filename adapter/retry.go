package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultBackoff is the delay before the first retry. Each later retry
// waits twice as long as the one before.
const DefaultBackoff = 500 * time.Millisecond

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn up to attempts times with exponential backoff starting at
// base. It stops on success, on a Permanent error, or when ctx ends.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = DefaultBackoff
	}

	var last error
	for i := range attempts {
		if i > 0 {
			timer := time.NewTimer(base << (i - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("canceled during backoff (last error: %v): %w", last, ctx.Err())
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		var pe *permanentError
		if errors.As(last, &pe) {
			return pe.err
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, last)
}
