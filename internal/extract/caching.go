package extract

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/spherical/lecture-ingest/internal/cache"
	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/spherical/lecture-ingest/internal/observability"
)

// CachingCaller serves repeated batches from a response cache
type CachingCaller struct {
	next      domain.Caller
	cache     cache.Client
	ttl       time.Duration
	namespace string
	logger    *observability.Logger
	hits      atomic.Int64
}

// NewCachingCaller wraps next with cache. Namespace should identify the
// backend and model so responses from different models never mix.
func NewCachingCaller(next domain.Caller, c cache.Client, ttl time.Duration, namespace string, logger *observability.Logger) *CachingCaller {
	if logger == nil {
		logger = observability.Nop()
	}
	return &CachingCaller{
		next:      next,
		cache:     c,
		ttl:       ttl,
		namespace: namespace,
		logger:    logger.WithOperation("cache"),
	}
}

// Extract returns a cached response or calls through and stores the result
func (c *CachingCaller) Extract(ctx context.Context, prompt string, batch domain.Batch) (string, error) {
	key := c.key(prompt, batch)

	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.hits.Add(1)
		c.logger.Debug().Int("batch", batch.Index).Msg("cache hit")
		return string(cached), nil
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn().Err(err).Int("batch", batch.Index).Msg("cache read failed")
	}

	text, err := c.next.Extract(ctx, prompt, batch)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, []byte(text), c.ttl); err != nil {
		c.logger.Warn().Err(err).Int("batch", batch.Index).Msg("cache write failed")
	}
	return text, nil
}

// Invalidate drops the cached response for a batch
func (c *CachingCaller) Invalidate(ctx context.Context, prompt string, batch domain.Batch) error {
	return c.cache.Delete(ctx, c.key(prompt, batch))
}

// Hits returns how many batches were served from cache
func (c *CachingCaller) Hits() int {
	return int(c.hits.Load())
}

func (c *CachingCaller) key(prompt string, batch domain.Batch) string {
	parts := make([]string, 0, len(batch.Pages)+2)
	parts = append(parts, c.namespace, prompt)
	for _, p := range batch.Pages {
		parts = append(parts, p.Data)
	}
	return "batch:" + cache.Key(parts...)
}
