package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, rps float64, burst int) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(rps, burst)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func TestMemoryLimiterAllowsWithinBurst(t *testing.T) {
	m := newLimiter(t, 10, 5)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := m.Allow(ctx, "tenant:acme")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should fit in the burst", i)
	}
}

func TestMemoryLimiterDeniesPastBurst(t *testing.T) {
	m := newLimiter(t, 10, 3)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "tenant:acme")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := m.Allow(ctx, "tenant:acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLimiterRefills(t *testing.T) {
	// 1000 rps refills one token per millisecond; a short sleep after
	// draining the burst is enough to admit the next request.
	m := newLimiter(t, 1000, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = m.Allow(ctx, "tenant:acme")
	}
	ok, err := m.Allow(ctx, "tenant:acme")
	require.NoError(t, err)
	require.False(t, ok, "bucket should be empty right after the burst")

	time.Sleep(5 * time.Millisecond)

	ok, err = m.Allow(ctx, "tenant:acme")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterIsolatesTenants(t *testing.T) {
	m := newLimiter(t, 10, 1)

	ctx := context.Background()
	ok, err := m.Allow(ctx, "tenant:acme")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.Allow(ctx, "tenant:acme")
	require.NoError(t, err)
	require.False(t, ok, "acme's budget is spent")

	// Globex is untouched by acme's exhaustion.
	ok, err = m.Allow(ctx, "tenant:globex")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterConcurrentSameTenant(t *testing.T) {
	m := newLimiter(t, 100, 50)

	ctx := context.Background()
	var wg sync.WaitGroup
	allowed := make([]int, 10)

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(ctx, "tenant:acme")
				assert.NoError(t, err)
				if ok {
					allowed[idx]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, c := range allowed {
		total += c
	}
	// 100 near-simultaneous requests against a burst of 50.
	assert.GreaterOrEqual(t, total, 1)
	assert.LessOrEqual(t, total, 50)
}

func TestMemoryLimiterEvictsIdleTenants(t *testing.T) {
	m := newLimiter(t, 10, 5)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "tenant:dormant")

	m.mu.Lock()
	m.tenants["tenant:dormant"].lastSeen = time.Now().Add(-15 * time.Minute)
	m.mu.Unlock()

	m.evictIdle()

	m.mu.Lock()
	_, exists := m.tenants["tenant:dormant"]
	m.mu.Unlock()
	assert.False(t, exists)
}

func TestMemoryLimiterKeepsActiveTenants(t *testing.T) {
	m := newLimiter(t, 10, 5)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "tenant:acme")

	m.evictIdle()

	m.mu.Lock()
	_, exists := m.tenants["tenant:acme"]
	m.mu.Unlock()
	assert.True(t, exists)
}

func TestMemoryLimiterRefillCapsAtBurst(t *testing.T) {
	m := newLimiter(t, 1000, 3)

	ctx := context.Background()
	_, _ = m.Allow(ctx, "tenant:acme")

	// An hour idle would compute a huge refill; the cap must hold.
	m.mu.Lock()
	m.tenants["tenant:acme"].lastSeen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "tenant:acme")
		require.NoError(t, err)
		require.True(t, ok, "request %d within the capped burst", i)
	}
	ok, err := m.Allow(ctx, "tenant:acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "tenant:anything")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, l.Close())
}
