package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spherical/lecture-ingest/internal/cache"
	"github.com/spherical/lecture-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingCaller_HitAvoidsSecondCall(t *testing.T) {
	ctx := context.Background()
	inner := &echoCaller{}
	caller := NewCachingCaller(inner, cache.NewMemoryClient(16), time.Hour, "openrouter:test-model", nil)

	batches, err := Partition(encodedPages(3), 5)
	require.NoError(t, err)

	first, err := caller.Extract(ctx, "prompt", batches[0])
	require.NoError(t, err)
	second, err := caller.Extract(ctx, "prompt", batches[0])
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, inner.called(), 1)
	assert.Equal(t, 1, caller.Hits())
}

func TestCachingCaller_KeyIncludesPromptAndNamespace(t *testing.T) {
	ctx := context.Background()
	inner := &echoCaller{}
	store := cache.NewMemoryClient(16)
	batches, err := Partition(encodedPages(2), 5)
	require.NoError(t, err)

	a := NewCachingCaller(inner, store, time.Hour, "model-a", nil)
	b := NewCachingCaller(inner, store, time.Hour, "model-b", nil)

	_, err = a.Extract(ctx, "prompt", batches[0])
	require.NoError(t, err)
	_, err = a.Extract(ctx, "other prompt", batches[0])
	require.NoError(t, err)
	_, err = b.Extract(ctx, "prompt", batches[0])
	require.NoError(t, err)

	assert.Len(t, inner.called(), 3)
}

func TestCachingCaller_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &echoCaller{fail: map[int]error{0: errors.New("rate limited")}}
	caller := NewCachingCaller(inner, cache.NewMemoryClient(16), time.Hour, "m", nil)
	batches, err := Partition(encodedPages(1), 5)
	require.NoError(t, err)

	_, err = caller.Extract(ctx, "prompt", batches[0])
	require.Error(t, err)
	_, err = caller.Extract(ctx, "prompt", batches[0])
	require.Error(t, err)

	assert.Len(t, inner.called(), 2)
	assert.Equal(t, 0, caller.Hits())
}

func TestService_ReconciliationInvalidatesCache(t *testing.T) {
	bad := true
	inner := &echoCaller{respond: func(batch domain.Batch) string {
		if bad {
			return "just one segment"
		}
		return echo(batch)
	}}
	caller := NewCachingCaller(inner, cache.NewMemoryClient(16), time.Hour, "m", nil)
	svc := newTestService(&fakeRenderer{pages: 3}, caller, DefaultOptions("prompt"))

	_, err := svc.Ingest(context.Background(), "lecture.pdf", nil)
	require.True(t, domain.IsType(err, domain.ErrorTypeReconciliation))

	bad = false
	docs, err := svc.Ingest(context.Background(), "lecture.pdf", nil)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	assert.Len(t, inner.called(), 2)
}
