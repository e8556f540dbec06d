package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter provides rate limiting functionality
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// SlidingWindowLimiter implements sliding window rate limiting
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	windows    map[string]*window
	limit      int
	windowSize time.Duration
	now        func() time.Time
}

type window struct {
	requests []time.Time
	mu       sync.Mutex
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// A limit of zero or less allows everything.
func NewSlidingWindowLimiter(limit int, windowSize time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows:    make(map[string]*window),
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

// WithClock overrides the time source
func (l *SlidingWindowLimiter) WithClock(now func() time.Time) *SlidingWindowLimiter {
	l.now = now
	return l
}

// Allow checks if a request is allowed
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	w, exists := l.windows[key]
	if !exists {
		w = &window{}
		l.windows[key] = w
	}
	l.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.trim(now.Add(-l.windowSize))

	if len(w.requests) >= l.limit {
		return false, nil
	}

	w.requests = append(w.requests, now)
	return true, nil
}

// Reset resets the rate limit for a key
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
	return nil
}

// Cleanup drops windows with no requests left in them
func (l *SlidingWindowLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.windowSize)
	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		w.trim(windowStart)
		empty := len(w.requests) == 0
		w.mu.Unlock()
		if empty {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// trim removes requests at or before windowStart; requests are in time order
func (w *window) trim(windowStart time.Time) {
	i := 0
	for i < len(w.requests) && !w.requests[i].After(windowStart) {
		i++
	}
	w.requests = w.requests[i:]
}

// SourceRateLimiter limits proposals per proposing source
type SourceRateLimiter struct {
	limiter RateLimiter
}

// NewSourceRateLimiter creates a limiter allowing proposalsPerMinute per source
func NewSourceRateLimiter(proposalsPerMinute int) *SourceRateLimiter {
	return &SourceRateLimiter{
		limiter: NewSlidingWindowLimiter(proposalsPerMinute, time.Minute),
	}
}

// NewSourceRateLimiterWith wraps an existing limiter
func NewSourceRateLimiterWith(limiter RateLimiter) *SourceRateLimiter {
	return &SourceRateLimiter{limiter: limiter}
}

// Allow checks if a proposal from source is allowed
func (l *SourceRateLimiter) Allow(ctx context.Context, source string) (bool, error) {
	return l.limiter.Allow(ctx, fmt.Sprintf("source:%s", source))
}

// Reset clears the window for source
func (l *SourceRateLimiter) Reset(ctx context.Context, source string) error {
	return l.limiter.Reset(ctx, fmt.Sprintf("source:%s", source))
}
