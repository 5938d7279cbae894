package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
	}
}

// StatusError is an unexpected HTTP answer. RetryAfter, when set, overrides
// the computed backoff for the next attempt.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// HTTPStatus returns the status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// WithBackoff executes a function with exponential backoff retry logic
func WithBackoff(ctx context.Context, config Config, operation func(context.Context) error) error {
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}

		if !isRetryableError(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == config.MaxRetries {
			return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delayFor(config, attempt, err)):
		}
	}

	return nil
}

// delayFor returns the wait before the next attempt: exponential backoff with
// jitter, unless the server asked for a specific delay.
func delayFor(config Config, attempt int, err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter
	}
	delay := config.BaseDelay * time.Duration(1<<attempt)
	if config.BaseDelay > 0 {
		delay += rand.N(config.BaseDelay)
	}
	return delay
}

// isRetryableError determines if an error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return HTTPStatusRetryable(sc.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unknown errors are retried; most are transport failures without a type.
	return true
}

// HTTPStatusRetryable checks if an HTTP status code is retryable
func HTTPStatusRetryable(statusCode int) bool {
	// Retry on server errors (5xx) and rate limiting (429)
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
