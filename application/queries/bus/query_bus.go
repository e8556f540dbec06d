package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"blueprint-drafts/application/ports"
)

// Query represents a read-only query
type Query interface {
	Validate() error
}

// QueryHandler handles a specific query type
type QueryHandler interface {
	Handle(ctx context.Context, query Query) (interface{}, error)
}

// ErrHandlerNotFound is returned when no handler is registered for a query
var ErrHandlerNotFound = errors.New("query handler not found")

// QueryBus dispatches queries to their handlers
type QueryBus struct {
	handlers map[reflect.Type]QueryHandler
	mu       sync.RWMutex
}

// NewQueryBus creates a new query bus
func NewQueryBus() *QueryBus {
	return &QueryBus{
		handlers: make(map[reflect.Type]QueryHandler),
	}
}

// Register registers a handler for a query type
func (b *QueryBus) Register(queryType Query, handler QueryHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := reflect.TypeOf(queryType)
	if _, exists := b.handlers[t]; exists {
		return fmt.Errorf("handler already registered for query type %s", t.Name())
	}

	b.handlers[t] = handler
	return nil
}

// Ask dispatches a query to its handler and returns the result
func (b *QueryBus) Ask(ctx context.Context, query Query) (interface{}, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	handler, exists := b.handlers[reflect.TypeOf(query)]
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %T", ErrHandlerNotFound, query)
	}

	return handler.Handle(ctx, query)
}

// QueryHandlerFunc is an adapter to allow functions to be used as handlers
type QueryHandlerFunc func(ctx context.Context, query Query) (interface{}, error)

// Handle implements QueryHandler
func (f QueryHandlerFunc) Handle(ctx context.Context, query Query) (interface{}, error) {
	return f(ctx, query)
}

// Cache stores query results
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// Cacheable is implemented by queries whose answer never changes once it
// exists. CacheKey must identify the answer uniquely.
type Cacheable interface {
	CacheKey() string
}

// CachingMiddleware serves Cacheable queries from cache; all other queries
// pass straight through.
type CachingMiddleware struct {
	cache Cache
	ttl   time.Duration
}

// NewCachingMiddleware creates a new caching middleware
func NewCachingMiddleware(cache Cache, ttl time.Duration) *CachingMiddleware {
	return &CachingMiddleware{cache: cache, ttl: ttl}
}

// Wrap wraps a query handler with caching
func (m *CachingMiddleware) Wrap(next QueryHandler) QueryHandler {
	return QueryHandlerFunc(func(ctx context.Context, query Query) (interface{}, error) {
		cacheable, ok := query.(Cacheable)
		if !ok || m.ttl <= 0 {
			return next.Handle(ctx, query)
		}

		key := fmt.Sprintf("%T:%s", query, cacheable.CacheKey())
		if cached, found := m.cache.Get(ctx, key); found {
			return cached, nil
		}

		result, err := next.Handle(ctx, query)
		if err != nil {
			return nil, err
		}
		m.cache.Set(ctx, key, result, m.ttl)
		return result, nil
	})
}

// MetricsMiddleware adds metrics to query handlers
type MetricsMiddleware struct {
	metrics ports.MetricsRecorder
}

// NewMetricsMiddleware creates a new metrics middleware
func NewMetricsMiddleware(metrics ports.MetricsRecorder) *MetricsMiddleware {
	return &MetricsMiddleware{
		metrics: metrics,
	}
}

// Wrap wraps a query handler with metrics
func (m *MetricsMiddleware) Wrap(next QueryHandler) QueryHandler {
	return QueryHandlerFunc(func(ctx context.Context, query Query) (interface{}, error) {
		start := time.Now()
		result, err := next.Handle(ctx, query)
		m.metrics.RecordOperation(ctx, "query."+reflect.TypeOf(query).Name(), time.Since(start), err)
		return result, err
	})
}
