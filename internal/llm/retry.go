package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/spherical/lecture-ingest/internal/domain"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// RetryConfig holds retry configuration. MaxRetries of zero disables retrying.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// NoRetry returns a configuration that makes exactly one attempt
func NoRetry() RetryConfig {
	return RetryConfig{}
}

// shouldRetry determines if an HTTP status is retryable
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	// initialBackoff * 2^attempt, capped
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// attemptFunc performs one call and returns the response text
type attemptFunc func(ctx context.Context) (string, error)

// retryWithBackoff runs fn until it succeeds, fails with a non-retryable error,
// or runs out of attempts. Every attempt gets its own timeout when configured.
func (s *settings) retryWithBackoff(ctx context.Context, retryable func(error) bool, fn attemptFunc) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.wait(ctx); err != nil {
			return "", err
		}

		text, err := s.attempt(ctx, fn)
		if err == nil {
			return text, nil
		}
		lastErr = err

		// Cancellation of the run is never retried
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isAttemptTimeout(err) && !retryable(err) {
			return "", err
		}

		if attempt == s.retry.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, s.retry)
		s.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", s.retry.MaxRetries).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("request failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	if s.retry.MaxRetries == 0 {
		return "", lastErr
	}
	return "", domain.IOError("request failed after retries", lastErr)
}

func (s *settings) attempt(ctx context.Context, fn attemptFunc) (string, error) {
	if s.timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(attemptCtx)
}

// isAttemptTimeout reports a per-attempt deadline, which is always retryable
func isAttemptTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
