package ratelimit

import (
	"context"
	"sync"
	"time"
)

// tokenBucket tracks the remaining request budget for one tenant key.
type tokenBucket struct {
	remaining float64
	lastSeen  time.Time
}

// MemoryLimiter is an in-process Limiter holding one token bucket per
// tenant. The server middleware keys it as "tenant:<tenant_id>", so a
// noisy tenant exhausts only its own budget and never a neighbour's.
//
// Buckets refill continuously at rps tokens per second up to burst. A
// janitor goroutine drops buckets for tenants idle longer than
// idleThreshold so the map stays bounded.
type MemoryLimiter struct {
	rps   float64
	burst float64

	mu      sync.Mutex
	tenants map[string]*tokenBucket

	closeOnce sync.Once
	stop      chan struct{}
}

// NewMemoryLimiter creates a per-tenant token bucket limiter with the
// given sustained rate (requests per second) and burst capacity. Call
// Close to stop the janitor goroutine.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rps:     rps,
		burst:   float64(burst),
		tenants: make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Allow spends one token from the key's bucket. A tenant's first request
// opens a full bucket and spends from it immediately.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.tenants[key]
	if !ok {
		m.tenants[key] = &tokenBucket{
			remaining: m.burst - 1,
			lastSeen:  now,
		}
		return true, nil
	}

	b.remaining += now.Sub(b.lastSeen).Seconds() * m.rps
	if b.remaining > m.burst {
		b.remaining = m.burst
	}
	b.lastSeen = now

	if b.remaining < 1 {
		return false, nil
	}
	b.remaining--
	return true, nil
}

// Close stops the janitor goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	return nil
}

const (
	idleThreshold = 10 * time.Minute
	sweepInterval = time.Minute
)

func (m *MemoryLimiter) janitor() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *MemoryLimiter) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-idleThreshold)
	for key, b := range m.tenants {
		if b.lastSeen.Before(cutoff) {
			delete(m.tenants, key)
		}
	}
}
