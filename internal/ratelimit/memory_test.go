package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(window time.Duration, max int) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newMemoryLimiter(window, max, clock.Now), clock
}

func TestMemoryLimiterBlocksAfterMax(t *testing.T) {
	l, clock := newTestLimiter(15*time.Minute, 100)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 100-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 100, d.Limit)
	assert.Equal(t, clock.Now().Add(15*time.Minute), d.ResetAt)
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)
	ctx := context.Background()

	d, _ := l.Allow(ctx, "a")
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "a")
	assert.False(t, d.Allowed)

	d, _ = l.Allow(ctx, "b")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiterResetsAfterWindow(t *testing.T) {
	l, clock := newTestLimiter(time.Minute, 2)
	ctx := context.Background()

	l.Allow(ctx, "a")
	l.Allow(ctx, "a")
	d, _ := l.Allow(ctx, "a")
	require.False(t, d.Allowed)

	clock.Advance(59 * time.Second)
	d, _ = l.Allow(ctx, "a")
	assert.False(t, d.Allowed, "window has not elapsed yet")

	clock.Advance(time.Second)
	d, _ = l.Allow(ctx, "a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestMemoryLimiterSweepDropsExpiredWindows(t *testing.T) {
	l, clock := newTestLimiter(time.Minute, 5)
	ctx := context.Background()

	l.Allow(ctx, "old")
	clock.Advance(30 * time.Second)
	l.Allow(ctx, "new")
	require.Equal(t, 2, l.Len())

	clock.Advance(31 * time.Second)
	l.sweep()
	assert.Equal(t, 1, l.Len())
}

func TestMemoryLimiterConcurrentCount(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 50)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(ctx, "shared")
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestMemoryLimiterCloseIsIdempotent(t *testing.T) {
	l := NewMemoryLimiter(time.Minute, 1)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestMemoryLimiterHonoursCanceledContext(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Allow(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLimiterRemainingCountsDown(t *testing.T) {
	l, _ := newTestLimiter(15*time.Minute, 3)
	ctx := context.Background()

	var remaining []int
	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "10.0.0.2")
		require.NoError(t, err)
		remaining = append(remaining, d.Remaining)
	}
	assert.Equal(t, []int{2, 1, 0, 0, 0}, remaining)

	d, err := l.Allow(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Remaining, "other keys keep their own budget")
}
