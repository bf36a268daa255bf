package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/spherical/lecture-ingest/internal/observability"
	"golang.org/x/time/rate"
)

// settings are shared by every extraction backend
type settings struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
	timeout    time.Duration
	limiter    *rate.Limiter
	stream     bool
	logger     *observability.Logger
}

// Option configures an extraction backend
type Option func(*settings)

func defaultSettings() settings {
	return settings{
		baseURL:    openRouterURL,
		httpClient: &http.Client{},
		retry:      DefaultRetryConfig(),
		logger:     observability.Nop(),
	}
}

// WithBaseURL points the chat completions client at another endpoint
func WithBaseURL(url string) Option {
	return func(s *settings) {
		if url != "" {
			s.baseURL = url
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithRetry sets the retry policy applied to every batch call
func WithRetry(cfg RetryConfig) Option {
	return func(s *settings) {
		s.retry = cfg
	}
}

// WithTimeout bounds every individual attempt
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(s *settings) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithStream enables server-sent event streaming of responses
func WithStream(enabled bool) Option {
	return func(s *settings) {
		s.stream = enabled
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func (s *settings) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}
