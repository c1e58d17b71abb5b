package limiter

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

// Memory is a process-local Limiter. It is only correct for a single instance;
// use Redis when several instances share clients.
type Memory struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewMemory returns an empty in-memory limiter.
func NewMemory() *Memory {
	return &Memory{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Check(_ context.Context, key string, maxAttempts int, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.counters[key]
	if !ok {
		return Result{Allowed: true}, nil
	}
	if now.Sub(c.windowStart) >= window {
		delete(m.counters, key)
		return Result{Allowed: true}, nil
	}
	if c.count >= maxAttempts {
		return Result{
			Allowed:    false,
			Count:      c.count,
			RetryAfter: c.windowStart.Add(window).Sub(now),
		}, nil
	}
	return Result{Allowed: true, Count: c.count}, nil
}

func (m *Memory) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.counters[key]
	if !ok || now.Sub(c.windowStart) >= c.window {
		c = &counter{}
		m.counters[key] = c
	}
	c.count++
	c.windowStart = now
	c.window = window
	return c.count, nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.counters, key)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Sweep removes counters whose window has passed and returns how many it dropped.
func (m *Memory) Sweep(context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, c := range m.counters {
		if now.Sub(c.windowStart) >= c.window {
			delete(m.counters, k)
			n++
		}
	}
	return n
}
