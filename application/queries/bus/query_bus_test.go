package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupQuery struct {
	Key string
}

func (q lookupQuery) Validate() error {
	if q.Key == "" {
		return errors.New("key is required")
	}
	return nil
}

func (q lookupQuery) CacheKey() string { return q.Key }

type liveQuery struct{}

func (liveQuery) Validate() error { return nil }

type mapCache struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func (c *mapCache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

type opRecorder struct {
	operations []string
}

func (r *opRecorder) RecordOperation(ctx context.Context, operation string, d time.Duration, err error) {
	r.operations = append(r.operations, operation)
}

func (r *opRecorder) RecordConflicts(ctx context.Context, kind string, count int) {}

func (r *opRecorder) RecordPreview(ctx context.Context, ok, stale bool) {}

func TestQueryBusAsk(t *testing.T) {
	b := NewQueryBus()
	require.NoError(t, b.Register(lookupQuery{}, QueryHandlerFunc(func(ctx context.Context, q Query) (interface{}, error) {
		return "value:" + q.(lookupQuery).Key, nil
	})))

	result, err := b.Ask(context.Background(), lookupQuery{Key: "a"})
	require.NoError(t, err)
	assert.Equal(t, "value:a", result)

	_, err = b.Ask(context.Background(), lookupQuery{})
	assert.EqualError(t, err, "key is required")

	_, err = b.Ask(context.Background(), liveQuery{})
	assert.ErrorIs(t, err, ErrHandlerNotFound)

	assert.Error(t, b.Register(lookupQuery{}, QueryHandlerFunc(func(ctx context.Context, q Query) (interface{}, error) {
		return nil, nil
	})))
}

func TestCachingMiddlewareOnlyCachesCacheable(t *testing.T) {
	calls := 0
	handler := QueryHandlerFunc(func(ctx context.Context, q Query) (interface{}, error) {
		calls++
		return calls, nil
	})
	wrapped := NewCachingMiddleware(&mapCache{items: map[string]interface{}{}}, time.Minute).Wrap(handler)
	ctx := context.Background()

	first, err := wrapped.Handle(ctx, lookupQuery{Key: "a"})
	require.NoError(t, err)
	second, err := wrapped.Handle(ctx, lookupQuery{Key: "a"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = wrapped.Handle(ctx, lookupQuery{Key: "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	_, err = wrapped.Handle(ctx, liveQuery{})
	require.NoError(t, err)
	_, err = wrapped.Handle(ctx, liveQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestCachingMiddlewareSkipsErrorsAndZeroTTL(t *testing.T) {
	calls := 0
	failing := QueryHandlerFunc(func(ctx context.Context, q Query) (interface{}, error) {
		calls++
		return nil, errors.New("missing")
	})
	cache := &mapCache{items: map[string]interface{}{}}
	wrapped := NewCachingMiddleware(cache, time.Minute).Wrap(failing)

	_, err := wrapped.Handle(context.Background(), lookupQuery{Key: "a"})
	require.Error(t, err)
	_, err = wrapped.Handle(context.Background(), lookupQuery{Key: "a"})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Empty(t, cache.items)

	disabled := NewCachingMiddleware(cache, 0).Wrap(QueryHandlerFunc(func(ctx context.Context, q Query) (interface{}, error) {
		return "x", nil
	}))
	_, err = disabled.Handle(context.Background(), lookupQuery{Key: "a"})
	require.NoError(t, err)
	assert.Empty(t, cache.items)
}

func TestMetricsMiddlewareNamesQueries(t *testing.T) {
	recorder := &opRecorder{}
	wrapped := NewMetricsMiddleware(recorder).Wrap(QueryHandlerFunc(func(ctx context.Context, q Query) (interface{}, error) {
		return nil, nil
	}))

	_, err := wrapped.Handle(context.Background(), liveQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"query.liveQuery"}, recorder.operations)
}
