package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestSlidingWindowLimiter(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewSlidingWindowLimiter(2, time.Minute).WithClock(clock.now)

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "k")
	assert.False(t, ok, "third request in the window is rejected")

	ok, _ = l.Allow(ctx, "other")
	assert.True(t, ok, "keys are independent")

	clock.t = clock.t.Add(time.Minute)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok, "window slid past the first requests")

	require.NoError(t, l.Reset(ctx, "k"))
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestSlidingWindowLimiterUnlimited(t *testing.T) {
	l := NewSlidingWindowLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestSlidingWindowLimiterCleanup(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewSlidingWindowLimiter(5, time.Minute).WithClock(clock.now)

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	assert.Equal(t, 0, l.Cleanup())

	clock.t = clock.t.Add(2 * time.Minute)
	assert.Equal(t, 2, l.Cleanup())
}

func TestSourceRateLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewSourceRateLimiter(1)

	ok, err := l.Allow(ctx, "assistant")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "assistant")
	assert.False(t, ok)
	ok, _ = l.Allow(ctx, "linter")
	assert.True(t, ok)

	require.NoError(t, l.Reset(ctx, "assistant"))
	ok, _ = l.Allow(ctx, "assistant")
	assert.True(t, ok)
}
