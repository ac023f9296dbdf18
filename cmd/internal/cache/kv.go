package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrStorageFull is returned by a KV when a write does not fit.
var ErrStorageFull = errors.New("cache: durable storage full")

// KV is the durable string key/value tier. It survives process restarts for
// persistent backends.
type KV interface {
	// Read returns ok=false when key is absent.
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	Write(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys beginning with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryKV is an in-process KV with an optional byte quota.
type MemoryKV struct {
	mu    sync.Mutex
	data  map[string]string
	used  int
	quota int
}

// NewMemoryKV constructs a MemoryKV. quota<=0 means unbounded.
func NewMemoryKV(quota int) *MemoryKV {
	return &MemoryKV{data: make(map[string]string), quota: quota}
}

func (m *MemoryKV) Read(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Write(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.used + entrySize(key, value)
	if old, ok := m.data[key]; ok {
		next -= entrySize(key, old)
	}
	if m.quota > 0 && next > m.quota {
		return ErrStorageFull
	}
	m.data[key] = value
	m.used = next
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		m.used -= entrySize(key, v)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Used reports the bytes currently held.
func (m *MemoryKV) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

func entrySize(key, value string) int { return len(key) + len(value) }
