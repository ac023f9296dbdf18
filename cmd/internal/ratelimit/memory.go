package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory is a process-local sliding-window limiter holding one window per key.
type Memory struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	longest time.Duration
	now     func() time.Time
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory constructs an empty limiter.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		windows: make(map[string][]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// CheckAndRecord implements Limiter.
func (m *Memory) CheckAndRecord(ctx context.Context, identity string, p Policy) (Decision, error) {
	if m == nil {
		return Decision{}, errors.New("ratelimit: nil limiter")
	}
	if p.Max <= 0 || p.Window <= 0 {
		return Decision{}, errors.New("ratelimit: invalid policy")
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	key, err := windowKey(p, identity)
	if err != nil {
		return Decision{}, err
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Window > m.longest {
		m.longest = p.Window
	}

	events, d := evaluate(now, m.windows[key], p.Max, p.Window)
	if d.Allowed {
		events = append(events, now)
	}
	m.windows[key] = events
	return d, nil
}

// Release takes back the most recent event recorded for identity under p.
// Layered calls it when the shared limiter rejects an action the local window
// already counted.
func (m *Memory) Release(_ context.Context, identity string, p Policy) error {
	key, err := windowKey(p, identity)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.windows[key]
	switch len(events) {
	case 0:
	case 1:
		delete(m.windows, key)
	default:
		m.windows[key] = events[:len(events)-1]
	}
	return nil
}

// Sweep drops windows whose events have all aged out of the longest window seen.
// It returns how many windows were removed.
func (m *Memory) Sweep() int {
	if m == nil {
		return 0
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	cut := now.Add(-m.longest)
	removed := 0
	for k, events := range m.windows {
		if len(events) == 0 || !events[len(events)-1].After(cut) {
			delete(m.windows, k)
			removed++
		}
	}
	return removed
}

// Len reports how many windows are tracked.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
