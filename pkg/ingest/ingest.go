// Package ingest is the public entry point for turning lecture slide PDFs
// into page-aligned markdown documents.
package ingest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spherical/lecture-ingest/internal/cache"
	"github.com/spherical/lecture-ingest/internal/config"
	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/spherical/lecture-ingest/internal/extract"
	"github.com/spherical/lecture-ingest/internal/llm"
	"github.com/spherical/lecture-ingest/internal/observability"
	"github.com/spherical/lecture-ingest/internal/pdf"
	"github.com/spherical/lecture-ingest/internal/store"
)

// Re-export types for the public API
type (
	Config           = config.Config
	Document         = domain.OutputDocument
	DocumentMetadata = domain.DocumentMetadata
	StreamEvent      = domain.StreamEvent
	EventType        = domain.EventType
	ProcessingStats  = domain.ProcessingStats
	Caller           = domain.Caller
	Batch            = domain.Batch
	Logger           = observability.Logger
	LogConfig        = observability.LogConfig
)

// Event type constants
const (
	EventStart           = domain.EventStart
	EventRendering       = domain.EventRendering
	EventBatchProcessing = domain.EventBatchProcessing
	EventBatchComplete   = domain.EventBatchComplete
	EventError           = domain.EventError
	EventComplete        = domain.EventComplete
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// NewLogger creates a structured logger for WithLogger
func NewLogger(cfg LogConfig) *Logger {
	return observability.NewLogger(cfg)
}

// ConfigEnv names the variable holding an optional YAML config path
const ConfigEnv = "LECTURE_INGEST_CONFIG"

// Client is the main entry point for the ingestion library.
// Calls are serialized because one renderer stages one document at a time.
type Client struct {
	mu        sync.Mutex
	cfg       *Config
	service   *extract.Service
	converter *pdf.Converter
	caching   *extract.CachingCaller
	store     *store.DocumentStore
	logger    *observability.Logger
	closers   []func() error
}

// ClientOption customizes client construction
type ClientOption func(*clientOptions)

type clientOptions struct {
	caller Caller
	logger *Logger
}

// WithCaller replaces the configured extraction backend
func WithCaller(c Caller) ClientOption {
	return func(o *clientOptions) {
		o.caller = c
	}
}

// WithLogger sets the logger used by every component
func WithLogger(logger *Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient creates a client from .env, the optional config file named by
// LECTURE_INGEST_CONFIG and environment overrides.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	config.LoadDotEnv()

	cfg, err := config.Load(os.Getenv(ConfigEnv))
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(ctx, cfg, opts...)
}

// NewClientWithConfig creates a client with explicit configuration
func NewClientWithConfig(ctx context.Context, cfg *Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("invalid configuration", err)
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: "lecture-ingest",
		})
	}

	c := &Client{cfg: cfg, logger: logger}

	prompt, err := llm.LoadPrompt(cfg.Extraction.PromptFile, cfg.Extraction.Subject)
	if err != nil {
		return nil, err
	}

	caller := o.caller
	namespace := "custom"
	if caller == nil {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		caller, namespace, err = c.newBackend(ctx)
		if err != nil {
			c.Close()
			return nil, err
		}
	}

	respCache, err := newCache(cfg.Cache)
	if err != nil {
		c.Close()
		return nil, err
	}
	if respCache != nil {
		c.closers = append(c.closers, respCache.Close)
		c.caching = extract.NewCachingCaller(caller, respCache, cfg.Cache.TTL, namespace, logger)
		caller = c.caching
	}

	if cfg.Store.Driver != "none" {
		c.store, err = store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, c.store.Close)
	}

	c.converter = pdf.NewConverter(pdf.ConverterOptions{
		StagingDir: cfg.Render.StagingDir,
		Quality:    cfg.Render.Quality,
		DPI:        cfg.Render.DPI,
		KeepImages: cfg.Render.KeepImages,
	}, logger)

	c.service = extract.NewService(c.converter, pdf.NewEncoder(), caller, extract.Options{
		Prompt:      prompt,
		BatchSize:   cfg.Extraction.BatchSize,
		Concurrency: cfg.Extraction.Concurrency,
		FailFast:    cfg.Extraction.FailFast,
	}, logger)

	return c, nil
}

// newBackend builds the extraction backend for the configured provider and
// returns it with a cache namespace identifying provider and model.
func (c *Client) newBackend(ctx context.Context) (Caller, string, error) {
	ex := c.cfg.Extraction
	llmOpts := []llm.Option{
		llm.WithRetry(llm.RetryConfig{
			MaxRetries:     c.cfg.Retry.MaxRetries,
			InitialBackoff: c.cfg.Retry.InitialBackoff,
			MaxBackoff:     c.cfg.Retry.MaxBackoff,
		}),
		llm.WithTimeout(ex.RequestTimeout),
		llm.WithRateLimit(ex.RateLimit),
		llm.WithStream(ex.Stream),
		llm.WithLogger(c.logger),
	}

	switch ex.Provider {
	case config.ProviderGemini:
		g, err := llm.NewGeminiClient(ctx, ex.APIKey, ex.Model, llmOpts...)
		if err != nil {
			return nil, "", err
		}
		c.closers = append(c.closers, g.Close)
		return g, ex.Provider + ":" + g.Model(), nil

	case config.ProviderOpenAI:
		baseURL := ex.BaseURL
		if baseURL == "" {
			baseURL = llm.OpenAIURL
		}
		model := ex.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		client := llm.NewClient(ex.APIKey, model, append(llmOpts, llm.WithBaseURL(baseURL))...)
		return client, ex.Provider + ":" + client.Model(), nil

	default:
		client := llm.NewClient(ex.APIKey, ex.Model, append(llmOpts, llm.WithBaseURL(ex.BaseURL))...)
		return client, ex.Provider + ":" + client.Model(), nil
	}
}

func newCache(cfg config.CacheConfig) (cache.Client, error) {
	switch cfg.Driver {
	case "memory":
		return cache.NewMemoryClient(cfg.MaxEntries), nil
	case "redis":
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, domain.IOError("connect to response cache", err)
		}
		return rc, nil
	default:
		return nil, nil
	}
}

// Parse ingests one PDF and returns its documents in page order. When a
// store is configured the documents are persisted before returning.
func (c *Client) Parse(ctx context.Context, pdfPath string) ([]Document, error) {
	return c.parse(ctx, pdfPath, "", nil, false)
}

// ParseAs is Parse with every document's source set to source instead of
// pdfPath. Uploads staged under temporary names use it to keep the original name.
func (c *Client) ParseAs(ctx context.Context, pdfPath, source string) ([]Document, error) {
	return c.parse(ctx, pdfPath, source, nil, false)
}

// ParseWithEvents is Parse with progress events sent to eventCh.
// Events are dropped rather than block when eventCh is full.
func (c *Client) ParseWithEvents(ctx context.Context, pdfPath string, eventCh chan<- StreamEvent) ([]Document, error) {
	return c.parse(ctx, pdfPath, "", eventCh, false)
}

// Process ingests a PDF in the background and streams progress events.
// Progress events may be dropped for a slow reader, but the final complete
// or error event is always delivered unless ctx is cancelled first. The
// channel closes after it.
func (c *Client) Process(ctx context.Context, pdfPath string) (<-chan StreamEvent, error) {
	// Validate input
	if _, err := os.Stat(pdfPath); os.IsNotExist(err) {
		return nil, domain.ValidationError("PDF file not found", err)
	}

	eventCh := make(chan StreamEvent, 100)

	go func() {
		defer close(eventCh)
		_, _ = c.parse(ctx, pdfPath, "", eventCh, true)
	}()

	return eventCh, nil
}

// parse runs the pipeline, stores the result and sends the terminal event.
// With waitTerminal the terminal event blocks until read or ctx is done.
func (c *Client) parse(ctx context.Context, pdfPath, source string, eventCh chan<- StreamEvent, waitTerminal bool) ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, stats, err := c.service.Run(ctx, pdfPath, eventCh)
	if err == nil {
		if source != "" {
			for i := range docs {
				docs[i].Metadata.Source = source
			}
		}
		err = c.save(ctx, stats.RunID, docs)
	}

	if err != nil {
		c.sendTerminal(ctx, eventCh, extract.ErrorEvent(err), waitTerminal)
		return nil, err
	}
	c.sendTerminal(ctx, eventCh, extract.CompleteEvent(stats), waitTerminal)
	return docs, nil
}

// save persists docs under the pipeline's run ID so rows match its logs
func (c *Client) save(ctx context.Context, runID string, docs []Document) error {
	if c.store == nil {
		return nil
	}
	if _, err := c.store.Save(ctx, runID, docs); err != nil {
		return fmt.Errorf("store documents: %w", err)
	}
	c.logger.Info().Str("run_id", runID).Int("documents", len(docs)).Msg("stored documents")
	return nil
}

func (c *Client) sendTerminal(ctx context.Context, eventCh chan<- StreamEvent, event StreamEvent, wait bool) {
	if eventCh == nil {
		return
	}
	if wait {
		select {
		case eventCh <- event:
		case <-ctx.Done():
			c.logger.Warn().Str("event", string(event.Type)).Msg("context done before final event was read")
		}
		return
	}
	select {
	case eventCh <- event:
	default:
		c.logger.Warn().Str("event", string(event.Type)).Msg("event channel full, dropping event")
	}
}

// Stored returns previously persisted documents for a source in page order
func (c *Client) Stored(ctx context.Context, source string) ([]Document, error) {
	if c.store == nil {
		return nil, domain.ConfigError("no document store configured", nil)
	}
	rows, err := c.store.List(ctx, source)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(rows))
	for i, r := range rows {
		docs[i] = r.Document
	}
	return docs, nil
}

// CacheHits reports how many batches were answered from the response cache
func (c *Client) CacheHits() int {
	if c.caching == nil {
		return 0
	}
	return c.caching.Hits()
}

// Close releases backend, cache and store resources
func (c *Client) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
