package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errSoft = errors.New("soft")
	errHard = errors.New("hard")
)

func isSoft(err error) bool { return errors.Is(err, errSoft) }

func TestWithRetrySucceedsAfterRetries(t *testing.T) {
	var seen []int
	n, err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 5}, isSoft, func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errSoft
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	n, err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 5}, isSoft, func(attempt int) error {
		if attempt == 2 {
			return errHard
		}
		return errSoft
	})
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, errHard)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestWithRetryExhausted(t *testing.T) {
	calls := 0
	n, err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 4}, nil, func(int) error {
		calls++
		return errSoft
	})
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errSoft)
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 4, ex.Attempts)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n, err := WithRetry(ctx, RetryConfig{MaxAttempts: 5, Delay: time.Hour}, nil, func(int) error {
		cancel()
		return errSoft
	})
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, context.Canceled)
}
