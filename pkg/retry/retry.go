// Package retry provides bounded retry with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/avolkov/choreo/pkg/types/errs"
)

// Do invokes fn up to maxAttempts times, sleeping baseDelay * 2^(attempt-1)
// between attempts, capped at maxDelay. The loop is explicit so stack depth
// stays constant regardless of the attempt budget. Returns nil on the first
// success; otherwise errs.ErrMaxRetriesExceeded joined with the last error.
func Do(ctx context.Context, maxAttempts int, baseDelay, maxDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = fn()
		if err == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff(baseDelay, maxDelay, attempt)):
		}
	}

	return errors.Join(errs.ErrMaxRetriesExceeded, err)
}

// Backoff returns the delay preceding attempt+1: baseDelay doubled once per
// completed attempt, capped at maxDelay.
func Backoff(baseDelay, maxDelay time.Duration, attempt int) time.Duration {
	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}

	return min(delay, maxDelay)
}
