// Package resilience provides the retry and circuit-breaker primitives
// shared by every outbound service call.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/RBarbieri13/decant/internal/common"
)

// retryableStatuses are HTTP statuses worth retrying.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// networkErrorIndicators are transient transport failures matched by
// substring against the error chain.
var networkErrorIndicators = []string{
	"ECONNRESET",
	"ETIMEDOUT",
	"ENOTFOUND",
	"ECONNREFUSED",
	"EHOSTUNREACH",
	"ENETUNREACH",
	"socket hang up",
	"connection reset",
	"connection refused",
	"i/o timeout",
	"no such host",
}

// HTTPError is an outbound-call failure that carries the HTTP status and the
// server's Retry-After header when present.
type HTTPError struct {
	StatusCode int
	Status     string
	RetryAfter string // seconds or HTTP-date, verbatim from the header
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("http %d %s", e.StatusCode, e.Status)
}

// RetryOptions configure the retry loop.
type RetryOptions struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// Jitter adds uniform random delay up to JitterFactor x the base delay.
	Jitter       bool
	JitterFactor float64
	// RetryableErrors is a caller-supplied substring list that also marks
	// an error as retryable.
	RetryableErrors []string
	// OnRetry fires before each sleep, with the 1-indexed attempt that
	// just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Presets. RateLimitRetry forces substring retry on the usual rate-limit
// error shapes.
func FastRetry() RetryOptions {
	return RetryOptions{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2.0, Jitter: true, JitterFactor: 0.2}
}

func StandardRetry() RetryOptions {
	return RetryOptions{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffMultiplier: 2.0, Jitter: true, JitterFactor: 0.2}
}

func PatientRetry() RetryOptions {
	return RetryOptions{MaxAttempts: 5, InitialDelay: 2 * time.Second, MaxDelay: 60 * time.Second, BackoffMultiplier: 2.0, Jitter: true, JitterFactor: 0.2}
}

func RateLimitRetry() RetryOptions {
	return RetryOptions{
		MaxAttempts:       4,
		InitialDelay:      5 * time.Second,
		MaxDelay:          120 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		JitterFactor:      0.2,
		RetryableErrors:   []string{"429", "Too Many Requests", "Rate limit"},
	}
}

// IsRetryable reports whether an error is worth another attempt under the
// given options. Circuit-open errors are always terminal so a retry loop can
// never hammer an open breaker.
func IsRetryable(err error, opts RetryOptions) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if common.CodeOf(err) == common.ErrCircuitOpen {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && retryableStatuses[httpErr.StatusCode] {
		return true
	}

	message := err.Error()
	for _, indicator := range networkErrorIndicators {
		if strings.Contains(message, indicator) {
			return true
		}
	}
	for _, substring := range opts.RetryableErrors {
		if strings.Contains(message, substring) {
			return true
		}
	}
	return false
}

// RetryAfterDelay parses a Retry-After value (delta-seconds or HTTP-date)
// out of the error chain. Returns 0 when absent or unparseable.
func RetryAfterDelay(err error) time.Duration {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.RetryAfter == "" {
		return 0
	}
	if seconds, parseErr := strconv.ParseFloat(httpErr.RetryAfter, 64); parseErr == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	if at, parseErr := http.ParseTime(httpErr.RetryAfter); parseErr == nil {
		if until := time.Until(at); until > 0 {
			return until
		}
	}
	return 0
}

// backoffDelay computes the delay before attempt n (0-indexed), honoring any
// Retry-After the error carries by taking the larger of the two.
func backoffDelay(attempt int, err error, opts RetryOptions) time.Duration {
	base := float64(opts.InitialDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt))
	if capped := float64(opts.MaxDelay); base > capped {
		base = capped
	}
	delay := time.Duration(base)
	if opts.Jitter && opts.JitterFactor > 0 {
		delay += time.Duration(rand.Float64() * opts.JitterFactor * base)
	}
	if retryAfter := RetryAfterDelay(err); retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

// Retry runs fn up to MaxAttempts times. A terminal non-retryable error is
// returned immediately; exhausting attempts returns the last error.
func Retry(ctx context.Context, opts RetryOptions, fn func(ctx context.Context) error) error {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr, opts) {
			return lastErr
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(attempt, lastErr, opts)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, lastErr, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// RetryValue is Retry for functions that return a value.
func RetryValue[T any](ctx context.Context, opts RetryOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Retry(ctx, opts, func(ctx context.Context) error {
		value, fnErr := fn(ctx)
		if fnErr != nil {
			return fnErr
		}
		result = value
		return nil
	})
	return result, err
}
