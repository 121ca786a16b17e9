// Package retry runs an operation a bounded number of times, retrying only
// the failures the caller classifies as retryable.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // Linear backoff: attempt * Delay
}

// ErrExhausted matches an ExhaustedError.
var ErrExhausted = errors.New("retry budget exhausted")

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// WithRetry calls fn with 1-based attempt numbers until it succeeds, returns
// an error retryable rejects, or MaxAttempts is reached. A nil retryable
// retries every error. It returns the number of attempts made.
func WithRetry(ctx context.Context, config RetryConfig, retryable func(error) bool, fn func(attempt int) error) (int, error) {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if retryable != nil && !retryable(err) {
			return attempt, err
		}
		lastErr = err

		if attempt == config.MaxAttempts {
			break
		}

		delay := config.Delay
		if config.Backoff {
			delay = time.Duration(attempt) * config.Delay
		}
		if delay <= 0 {
			if err := ctx.Err(); err != nil {
				return attempt, err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
	}

	return config.MaxAttempts, &ExhaustedError{Attempts: config.MaxAttempts, Last: lastErr}
}
