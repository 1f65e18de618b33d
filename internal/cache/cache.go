package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scriptforge/internal/logging"
)

// Tier identifies one cache level, ordered fastest to slowest.
type Tier string

const (
	TierMemory Tier = "memory"
	TierStore  Tier = "store"
	TierRemote Tier = "remote"
)

// KV is the contract the persistent and remote tiers implement.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context, prefix string) (int64, error)
}

// trimmer is implemented by KV backends that can enforce a capacity bound.
type trimmer interface {
	Trim(ctx context.Context, prefix string, max int) (int64, error)
}

// keyLister is implemented by KV backends that can enumerate keys for sweeps.
type keyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Options sizes the tiers. Zero TTLs and capacities fall back to defaults.
type Options struct {
	Namespace      string
	MemoryTTL      time.Duration
	MemoryCapacity int
	StoreTTL       time.Duration
	StoreCapacity  int
	RemoteTTL      time.Duration
}

// DefaultNamespace prefixes persisted keys when Options.Namespace is unset.
const DefaultNamespace = "sfcache:"

// Stats aggregates hit/miss counters across tiers.
type Stats struct {
	Hits       int64
	Misses     int64
	MemoryHits int64
	StoreHits  int64
	RemoteHits int64
	Promotions int64
	Evictions  int64
	Expired    int64
}

// Cache is the multi-level cache. The zero value is not usable; construct
// with New.
type Cache struct {
	mu     sync.Mutex
	memory *memoryTier
	store  KV
	remote KV
	opts   Options
	stats  Stats
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes the cache.
type Option func(*Cache)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a logger for tier errors and evictions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "cache")
		}
	}
}

// New constructs a Cache. store and remote may be nil; absent tiers are
// skipped on both reads and writes.
func New(store, remote KV, opts Options, options ...Option) *Cache {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = 5 * time.Minute
	}
	if opts.MemoryCapacity <= 0 {
		opts.MemoryCapacity = 128
	}
	if opts.StoreTTL <= 0 {
		opts.StoreTTL = 24 * time.Hour
	}
	if opts.StoreCapacity <= 0 {
		opts.StoreCapacity = 4096
	}
	if opts.RemoteTTL <= 0 {
		opts.RemoteTTL = 7 * 24 * time.Hour
	}
	c := &Cache{
		memory: newMemoryTier(opts.MemoryCapacity),
		store:  store,
		remote: remote,
		opts:   opts,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// persistedEntry is the JSON shape written into the slower tiers.
type persistedEntry struct {
	Value      string    `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds int       `json:"ttl_seconds"`
	HitCount   int       `json:"hit_count"`
	Size       int       `json:"size"`
}

func (e persistedEntry) fresh(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return true
	}
	return now.Sub(e.CreatedAt) <= time.Duration(e.TTLSeconds)*time.Second
}

func (c *Cache) nsKey(key string) string {
	return c.opts.Namespace + key
}

// Get returns the cached value for key, walking tiers fastest-first. A hit at
// a slower tier is promoted into every faster tier with a fresh TTL.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.memory.get(key); ok {
		if entry.ttl <= 0 || now.Sub(entry.createdAt) <= entry.ttl {
			entry.hitCount++
			c.stats.Hits++
			c.stats.MemoryHits++
			value := entry.value
			c.mu.Unlock()
			return value, true
		}
		c.memory.remove(key)
		c.stats.Expired++
	}
	c.mu.Unlock()

	if value, ok := c.getFromKV(ctx, c.store, key, now); ok {
		c.promoteToMemory(key, value, now)
		c.mu.Lock()
		c.stats.Hits++
		c.stats.StoreHits++
		c.stats.Promotions++
		c.mu.Unlock()
		return value, true
	}

	if value, ok := c.getFromKV(ctx, c.remote, key, now); ok {
		c.writeToKV(ctx, c.store, key, value, c.opts.StoreTTL, now)
		c.promoteToMemory(key, value, now)
		c.mu.Lock()
		c.stats.Hits++
		c.stats.RemoteHits++
		c.stats.Promotions++
		c.mu.Unlock()
		return value, true
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	return "", false
}

// Peek returns the cached value without updating statistics, hit counts, or
// tier placement.
func (c *Cache) Peek(ctx context.Context, key string) (string, bool) {
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.memory.peek(key); ok {
		if entry.ttl <= 0 || now.Sub(entry.createdAt) <= entry.ttl {
			value := entry.value
			c.mu.Unlock()
			return value, true
		}
	}
	c.mu.Unlock()

	if value, ok := c.getFromKV(ctx, c.store, key, now); ok {
		return value, true
	}
	if value, ok := c.getFromKV(ctx, c.remote, key, now); ok {
		return value, true
	}
	return "", false
}

// SetOptions controls placement and lifetime of a Set.
type SetOptions struct {
	// TTL overrides the per-tier default lifetime when positive.
	TTL time.Duration
	// Tiers restricts which tiers receive the value; empty means all.
	Tiers []Tier
}

// Set writes value through to the selected tiers.
func (c *Cache) Set(ctx context.Context, key, value string, opts SetOptions) error {
	now := c.now()
	wanted := func(tier Tier) bool {
		if len(opts.Tiers) == 0 {
			return true
		}
		for _, t := range opts.Tiers {
			if t == tier {
				return true
			}
		}
		return false
	}
	ttlFor := func(fallback time.Duration) time.Duration {
		if opts.TTL > 0 {
			return opts.TTL
		}
		return fallback
	}

	if wanted(TierMemory) {
		c.mu.Lock()
		if evicted, ok := c.memory.put(&memoryEntry{
			key:       key,
			value:     value,
			createdAt: now,
			ttl:       ttlFor(c.opts.MemoryTTL),
			size:      len(value),
		}); ok {
			c.stats.Evictions++
			c.logger.Debug("memory tier evicted entry", logging.String("key", evicted))
		}
		c.mu.Unlock()
	}

	if wanted(TierStore) && c.store != nil {
		if err := c.writeToKV(ctx, c.store, key, value, ttlFor(c.opts.StoreTTL), now); err != nil {
			return fmt.Errorf("store tier set: %w", err)
		}
		if t, ok := c.store.(trimmer); ok {
			if _, err := t.Trim(ctx, c.opts.Namespace, c.opts.StoreCapacity); err != nil {
				c.logger.Warn("store tier trim failed", logging.Error(err))
			}
		}
	}

	if wanted(TierRemote) && c.remote != nil {
		if err := c.writeToKV(ctx, c.remote, key, value, ttlFor(c.opts.RemoteTTL), now); err != nil {
			// The remote tier is best-effort; a write failure must not fail
			// the memoization.
			c.logger.Warn("remote tier set failed", logging.Error(err))
		}
	}

	return nil
}

// Delete removes key from every tier.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	c.memory.remove(key)
	c.mu.Unlock()

	for _, kv := range []KV{c.store, c.remote} {
		if kv == nil {
			continue
		}
		if err := kv.Delete(ctx, c.nsKey(key)); err != nil {
			return fmt.Errorf("delete cache key: %w", err)
		}
	}
	return nil
}

// Clear empties every tier within this cache's namespace.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.memory.clear()
	c.mu.Unlock()

	for _, kv := range []KV{c.store, c.remote} {
		if kv == nil {
			continue
		}
		if _, err := kv.Clear(ctx, c.opts.Namespace); err != nil {
			return fmt.Errorf("clear cache namespace: %w", err)
		}
	}
	return nil
}

// WarmupEntry seeds the memory tier before a run.
type WarmupEntry struct {
	Key   string
	Value string
}

// Warmup loads entries into the memory tier with the default memory TTL.
func (c *Cache) Warmup(entries []WarmupEntry) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range entries {
		if evicted, ok := c.memory.put(&memoryEntry{
			key:       entry.Key,
			value:     entry.Value,
			createdAt: now,
			ttl:       c.opts.MemoryTTL,
			size:      len(entry.Value),
		}); ok {
			c.stats.Evictions++
			c.logger.Debug("memory tier evicted entry during warmup", logging.String("key", evicted))
		}
	}
}

// Sweep purges expired entries from the memory and store tiers. Entries are
// otherwise expired lazily on read.
func (c *Cache) Sweep(ctx context.Context) int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for _, key := range c.memory.expiredKeys(now) {
		c.memory.remove(key)
		c.stats.Expired++
		removed++
	}
	c.mu.Unlock()

	lister, ok := c.store.(keyLister)
	if !ok || c.store == nil {
		return removed
	}
	keys, err := lister.Keys(ctx, c.opts.Namespace)
	if err != nil {
		c.logger.Warn("store tier sweep listing failed", logging.Error(err))
		return removed
	}
	for _, nsKey := range keys {
		raw, found, err := c.store.Get(ctx, nsKey)
		if err != nil || !found {
			continue
		}
		var entry persistedEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || !entry.fresh(now) {
			if delErr := c.store.Delete(ctx, nsKey); delErr == nil {
				c.mu.Lock()
				c.stats.Expired++
				c.mu.Unlock()
				removed++
			}
		}
	}
	return removed
}

// Stats returns a snapshot of the hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// MemoryLen reports the number of live entries in the memory tier.
func (c *Cache) MemoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory.len()
}

func (c *Cache) getFromKV(ctx context.Context, kv KV, key string, now time.Time) (string, bool) {
	if kv == nil {
		return "", false
	}
	raw, ok, err := kv.Get(ctx, c.nsKey(key))
	if err != nil {
		c.logger.Warn("cache tier read failed", logging.String("key", key), logging.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	var entry persistedEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("cache tier entry corrupt", logging.String("key", key), logging.Error(err))
		return "", false
	}
	if !entry.fresh(now) {
		// Lazy expiry: treat as absent, leave removal to Sweep.
		return "", false
	}
	return entry.Value, true
}

func (c *Cache) writeToKV(ctx context.Context, kv KV, key, value string, ttl time.Duration, now time.Time) error {
	if kv == nil {
		return nil
	}
	entry := persistedEntry{
		Value:      value,
		CreatedAt:  now,
		TTLSeconds: int(ttl / time.Second),
		Size:       len(value),
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return kv.Set(ctx, c.nsKey(key), string(encoded))
}

func (c *Cache) promoteToMemory(key, value string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if evicted, ok := c.memory.put(&memoryEntry{
		key:       key,
		value:     value,
		createdAt: now,
		ttl:       c.opts.MemoryTTL,
		size:      len(value),
	}); ok {
		c.stats.Evictions++
		c.logger.Debug("memory tier evicted entry", logging.String("key", evicted))
	}
}
