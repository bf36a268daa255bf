package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}

	assert.Equal(t, 1*time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(3, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(10, cfg))
}

func TestShouldRetry(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, shouldRetry(code), "status %d", code)
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		assert.False(t, shouldRetry(code), "status %d", code)
	}
}

func TestRetryWithBackoff_NoRetryMakesOneAttempt(t *testing.T) {
	s := defaultSettings()
	s.retry = NoRetry()

	attempts := 0
	boom := errors.New("boom")
	_, err := s.retryWithBackoff(context.Background(), func(error) bool { return true }, func(context.Context) (string, error) {
		attempts++
		return "", boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_StopsOnNonRetryable(t *testing.T) {
	s := defaultSettings()
	s.retry = RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}

	attempts := 0
	_, err := s.retryWithBackoff(context.Background(), func(error) bool { return false }, func(context.Context) (string, error) {
		attempts++
		return "", errors.New("fatal")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ParentCancelDuringBackoff(t *testing.T) {
	s := defaultSettings()
	s.retry = RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.retryWithBackoff(ctx, func(error) bool { return true }, func(context.Context) (string, error) {
		cancel()
		return "", errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBackoff_RateLimited(t *testing.T) {
	s := defaultSettings()
	s.retry = NoRetry()
	WithRateLimit(1000)(&s)
	require.NotNil(t, s.limiter)

	for i := 0; i < 3; i++ {
		text, err := s.retryWithBackoff(context.Background(), func(error) bool { return false }, func(context.Context) (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
	}
}
