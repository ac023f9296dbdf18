// Package cache implements the two-tier namespace cache: a volatile in-process
// map in front of a durable KV, with per-namespace TTLs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Namespaces with a configured TTL.
const (
	NSServices     = "services"
	NSLocations    = "locations"
	NSTestimonials = "testimonials"
	NSBookings     = "bookings"
	NSSettings     = "settings"
)

// DefaultKeyPrefix namespaces durable keys.
const DefaultKeyPrefix = "glowlogy_"

// ErrUnknownNamespace is returned by Set for a namespace without a TTL.
var ErrUnknownNamespace = errors.New("cache: unknown namespace")

// Source says which tier answered a Get.
type Source string

const (
	SourceMemory  Source = "memory"
	SourceStorage Source = "storage"
	SourceMiss    Source = "miss"
)

// DefaultTTLs returns the stock namespace policy.
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		NSServices:     5 * time.Minute,
		NSLocations:    10 * time.Minute,
		NSTestimonials: 15 * time.Minute,
		NSBookings:     1 * time.Minute,
		NSSettings:     30 * time.Minute,
	}
}

// Observer receives cache events for metrics.
type Observer interface {
	CacheLookup(ns string, src Source)
	CacheInvalidated(ns string)
	CacheDurableWriteFailed(ns string)
}

// envelope is the durable representation.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Expiry int64           `json:"expiry"`
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
	// tombstone masks a durable entry whose delete failed.
	tombstone bool
}

// Tiered is safe for concurrent use.
type Tiered struct {
	kv     KV
	ttl    map[string]time.Duration
	prefix string
	now    func() time.Time
	log    *slog.Logger
	obs    Observer

	// writeMu orders writes against Invalidate so a write that lost the race
	// never lands after the invalidation.
	writeMu sync.Mutex

	mu  sync.Mutex
	mem map[string]memEntry
	// gen advances on Invalidate so an in-flight durable read cannot promote stale data.
	gen map[string]uint64

	hookMu       sync.RWMutex
	onInvalidate []func(ns string, at time.Time)
}

// Option configures Tiered.
type Option func(*Tiered)

// WithTTLs replaces the namespace policy.
func WithTTLs(ttl map[string]time.Duration) Option {
	return func(c *Tiered) {
		if len(ttl) == 0 {
			return
		}
		c.ttl = make(map[string]time.Duration, len(ttl))
		for ns, d := range ttl {
			if d > 0 {
				c.ttl[ns] = d
			}
		}
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Tiered) {
		if strings.TrimSpace(prefix) != "" {
			c.prefix = prefix
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Tiered) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Tiered) {
		if log != nil {
			c.log = log
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Tiered) { c.obs = o }
}

// New constructs a Tiered cache over kv. A nil kv yields a volatile-only cache.
func New(kv KV, opts ...Option) *Tiered {
	c := &Tiered{
		kv:     kv,
		ttl:    DefaultTTLs(),
		prefix: DefaultKeyPrefix,
		now:    time.Now,
		log:    slog.Default(),
		mem:    make(map[string]memEntry),
		gen:    make(map[string]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// OnInvalidate registers fn to run after every Invalidate.
func (c *Tiered) OnInvalidate(fn func(ns string, at time.Time)) {
	if fn == nil {
		return
	}
	c.hookMu.Lock()
	c.onInvalidate = append(c.onInvalidate, fn)
	c.hookMu.Unlock()
}

// TTL reports the configured lifetime of ns.
func (c *Tiered) TTL(ns string) (time.Duration, bool) {
	d, ok := c.ttl[ns]
	return d, ok
}

func (c *Tiered) key(ns string) string { return c.prefix + ns }

// Get decodes the live payload of ns into dst. Expired or corrupt entries are
// purged and reported as a miss.
func (c *Tiered) Get(ctx context.Context, ns string, dst any) (Source, bool) {
	if _, ok := c.ttl[ns]; !ok {
		return SourceMiss, false
	}
	now := c.now()

	c.mu.Lock()
	e, ok := c.mem[ns]
	if ok && !now.Before(e.expiresAt) {
		delete(c.mem, ns)
		ok = false
	}
	gen := c.gen[ns]
	c.mu.Unlock()

	if ok {
		if e.tombstone {
			c.observe(ns, SourceMiss)
			return SourceMiss, false
		}
		if err := json.Unmarshal(e.data, dst); err != nil {
			c.log.Warn("cache.memory.decode.fail", "namespace", ns, "err", err)
			c.dropMemory(ns)
			c.observe(ns, SourceMiss)
			return SourceMiss, false
		}
		c.observe(ns, SourceMemory)
		return SourceMemory, true
	}

	data, expiresAt, ok := c.readDurable(ctx, ns, now)
	if !ok {
		c.observe(ns, SourceMiss)
		return SourceMiss, false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn("cache.storage.decode.fail", "namespace", ns, "err", err)
		c.deleteDurable(ctx, ns)
		c.observe(ns, SourceMiss)
		return SourceMiss, false
	}

	c.mu.Lock()
	if c.gen[ns] == gen {
		c.mem[ns] = memEntry{data: data, expiresAt: expiresAt}
	}
	c.mu.Unlock()

	c.observe(ns, SourceStorage)
	return SourceStorage, true
}

// readDurable returns the live payload held in the KV, purging dead entries.
func (c *Tiered) readDurable(ctx context.Context, ns string, now time.Time) ([]byte, time.Time, bool) {
	if c.kv == nil {
		return nil, time.Time{}, false
	}
	raw, ok, err := c.kv.Read(ctx, c.key(ns))
	if err != nil {
		c.log.Warn("cache.storage.read.fail", "namespace", ns, "err", err)
		return nil, time.Time{}, false
	}
	if !ok {
		return nil, time.Time{}, false
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		c.log.Warn("cache.storage.corrupt", "namespace", ns, "err", err)
		c.deleteDurable(ctx, ns)
		return nil, time.Time{}, false
	}
	expiresAt := time.UnixMilli(env.Expiry)
	if !now.Before(expiresAt) {
		c.deleteDurable(ctx, ns)
		return nil, time.Time{}, false
	}
	return env.Data, expiresAt, true
}

// Generation reports the invalidation counter of ns. Pass it to
// SetIfUnchanged to cache a value computed from reads made after this call.
func (c *Tiered) Generation(ns string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[ns]
}

// Set stores payload under ns in both tiers. A durable failure that survives
// one ClearExpired pass leaves the value in memory only.
func (c *Tiered) Set(ctx context.Context, ns string, payload any) error {
	_, err := c.set(ctx, ns, payload, nil)
	return err
}

// SetIfUnchanged stores payload only when ns has not been invalidated since
// Generation returned gen. It reports whether the value was stored.
func (c *Tiered) SetIfUnchanged(ctx context.Context, ns string, gen uint64, payload any) (bool, error) {
	return c.set(ctx, ns, payload, &gen)
}

func (c *Tiered) set(ctx context.Context, ns string, payload any, gen *uint64) (bool, error) {
	ttl, ok := c.ttl[ns]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("cache: encode %s: %w", ns, err)
	}
	expiresAt := c.now().Add(ttl)

	raw, err := json.Marshal(envelope{Data: data, Expiry: expiresAt.UnixMilli()})
	if err != nil {
		return false, fmt.Errorf("cache: encode envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if gen != nil && c.gen[ns] != *gen {
		c.mu.Unlock()
		return false, nil
	}
	c.mem[ns] = memEntry{data: data, expiresAt: expiresAt}
	c.mu.Unlock()

	if c.kv == nil {
		return true, nil
	}

	if err := c.kv.Write(ctx, c.key(ns), string(raw)); err != nil {
		c.log.Info("cache.storage.write.retry", "namespace", ns, "err", err)
		if _, cerr := c.ClearExpired(ctx); cerr != nil {
			c.log.Warn("cache.storage.clear_expired.fail", "err", cerr)
		}
		if err := c.kv.Write(ctx, c.key(ns), string(raw)); err != nil {
			c.log.Warn("cache.storage.write.fail", "namespace", ns, "err", err)
			if c.obs != nil {
				c.obs.CacheDurableWriteFailed(ns)
			}
		}
	}
	return true, nil
}

// Invalidate removes ns from both tiers and notifies OnInvalidate hooks.
func (c *Tiered) Invalidate(ctx context.Context, ns string) {
	now := c.now()

	c.writeMu.Lock()
	var delErr error
	if c.kv != nil {
		delErr = c.kv.Delete(ctx, c.key(ns))
	}

	c.mu.Lock()
	c.gen[ns]++
	if delErr != nil {
		// Hide the durable copy until it could have expired on its own.
		ttl := c.ttl[ns]
		c.mem[ns] = memEntry{expiresAt: now.Add(ttl), tombstone: true}
	} else {
		delete(c.mem, ns)
	}
	c.mu.Unlock()
	c.writeMu.Unlock()

	if delErr != nil {
		c.log.Warn("cache.storage.delete.fail", "namespace", ns, "err", delErr)
	}
	if c.obs != nil {
		c.obs.CacheInvalidated(ns)
	}

	c.hookMu.RLock()
	hooks := slices.Clone(c.onInvalidate)
	c.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(ns, now)
	}
}

// Clear invalidates every configured namespace.
func (c *Tiered) Clear(ctx context.Context) {
	for ns := range c.ttl {
		c.Invalidate(ctx, ns)
	}
}

// ClearExpired purges expired and corrupt entries from both tiers and returns
// how many durable keys were removed.
func (c *Tiered) ClearExpired(ctx context.Context) (int, error) {
	now := c.now()

	c.mu.Lock()
	for ns, e := range c.mem {
		if !now.Before(e.expiresAt) {
			delete(c.mem, ns)
		}
	}
	c.mu.Unlock()

	if c.kv == nil {
		return 0, nil
	}
	keys, err := c.kv.Keys(ctx, c.prefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, k := range keys {
		raw, ok, err := c.kv.Read(ctx, k)
		if err != nil || !ok {
			continue
		}
		env, err := decodeEnvelope(raw)
		if err == nil && now.Before(time.UnixMilli(env.Expiry)) {
			continue
		}
		if err := c.kv.Delete(ctx, k); err != nil {
			c.log.Warn("cache.storage.delete.fail", "key", k, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (c *Tiered) dropMemory(ns string) {
	c.mu.Lock()
	delete(c.mem, ns)
	c.mu.Unlock()
}

func (c *Tiered) deleteDurable(ctx context.Context, ns string) {
	if err := c.kv.Delete(ctx, c.key(ns)); err != nil {
		c.log.Warn("cache.storage.delete.fail", "namespace", ns, "err", err)
	}
}

func (c *Tiered) observe(ns string, src Source) {
	if c.obs != nil {
		c.obs.CacheLookup(ns, src)
	}
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, err
	}
	if len(env.Data) == 0 || env.Expiry <= 0 {
		return envelope{}, errors.New("incomplete envelope")
	}
	return env, nil
}
