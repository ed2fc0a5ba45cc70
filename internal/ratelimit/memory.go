package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local fixed-window counter. It serves as the
// fallback when Redis is unavailable and as the limiter of choice in tests.
// Counters are not shared across instances.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewMemoryLimiter creates a new in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow increments the counter for endpoint within the current window and
// denies the call once the budget is exhausted.
func (m *MemoryLimiter) Allow(_ context.Context, endpoint string, limit Limit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[endpoint]
	if !ok || now.Sub(w.start) >= limit.Window {
		m.windows[endpoint] = &window{start: now, count: 1}
		if limit.Max < 1 {
			return &LimitExceededError{Endpoint: endpoint, Limit: limit}
		}
		return nil
	}

	w.count++
	if w.count > limit.Max {
		return &LimitExceededError{Endpoint: endpoint, Limit: limit}
	}
	return nil
}

// Reset clears the counter for an endpoint.
func (m *MemoryLimiter) Reset(endpoint string) {
	m.mu.Lock()
	delete(m.windows, endpoint)
	m.mu.Unlock()
}
