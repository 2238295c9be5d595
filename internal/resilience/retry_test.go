package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RBarbieri13/decant/internal/common"
)

func quickRetry(maxAttempts int) RetryOptions {
	return RetryOptions{
		MaxAttempts:       maxAttempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetry_SucceedsOnKthAttempt(t *testing.T) {
	ctx := context.Background()

	calls := 0
	retries := 0
	opts := quickRetry(5)
	opts.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries++
	}

	value, err := RetryValue(ctx, opts, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &HTTPError{StatusCode: http.StatusServiceUnavailable, Status: "Service Unavailable"}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries, "onRetry fires exactly k-1 times")
}

func TestRetry_TerminalErrorReturnsImmediately(t *testing.T) {
	ctx := context.Background()

	calls := 0
	terminal := errors.New("invalid credentials")
	err := Retry(ctx, quickRetry(5), func(ctx context.Context) error {
		calls++
		return terminal
	})

	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustedReturnsLastError(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := Retry(ctx, quickRetry(3), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, &HTTPError{StatusCode: http.StatusBadGateway, Status: "Bad Gateway"})
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt 3")
}

func TestRetry_CircuitOpenIsNotRetryable(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := Retry(ctx, quickRetry(5), func(ctx context.Context) error {
		calls++
		return common.NewError(common.ErrCircuitOpen, "circuit breaker open: llm")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, common.ErrCircuitOpen, common.CodeOf(err))
}

func TestRetry_SubstringListMarksRetryable(t *testing.T) {
	opts := RateLimitRetry()

	assert.True(t, IsRetryable(errors.New("Too Many Requests"), opts))
	assert.True(t, IsRetryable(errors.New("Rate limit hit for model"), opts))
	assert.True(t, IsRetryable(errors.New("status 429 returned"), opts))
	assert.False(t, IsRetryable(errors.New("bad request"), opts))
}

func TestRetry_NetworkIndicators(t *testing.T) {
	opts := StandardRetry()

	assert.True(t, IsRetryable(errors.New("read tcp: ECONNRESET"), opts))
	assert.True(t, IsRetryable(errors.New("socket hang up"), opts))
	assert.True(t, IsRetryable(errors.New("dial tcp: i/o timeout"), opts))
	assert.False(t, IsRetryable(errors.New("schema mismatch"), opts))
}

func TestRetryAfterDelay_Seconds(t *testing.T) {
	err := fmt.Errorf("call failed: %w", &HTTPError{
		StatusCode: http.StatusTooManyRequests,
		Status:     "Too Many Requests",
		RetryAfter: "7",
	})

	assert.Equal(t, 7*time.Second, RetryAfterDelay(err))
}

func TestRetryAfterDelay_HTTPDate(t *testing.T) {
	at := time.Now().Add(30 * time.Second).UTC()
	err := &HTTPError{
		StatusCode: http.StatusServiceUnavailable,
		Status:     "Service Unavailable",
		RetryAfter: at.Format(http.TimeFormat),
	}

	delay := RetryAfterDelay(err)
	assert.Greater(t, delay, 20*time.Second)
	assert.LessOrEqual(t, delay, 30*time.Second)
}

func TestRetryAfterDelay_HonoredOverBackoff(t *testing.T) {
	opts := quickRetry(3)
	err := &HTTPError{StatusCode: 429, Status: "Too Many Requests", RetryAfter: "1"}

	delay := backoffDelay(0, err, opts)
	assert.Equal(t, time.Second, delay, "Retry-After beats the calculated delay")
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := quickRetry(5)
	opts.InitialDelay = time.Second

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, opts, func(ctx context.Context) error {
			calls++
			return &HTTPError{StatusCode: 503, Status: "Service Unavailable"}
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not abort on cancellation")
	}
}
