package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeKV struct {
	mu      sync.Mutex
	entries map[string]string
	gets    int
	sets    int
}

func newFakeKV() *fakeKV {
	return &fakeKV{entries: map[string]string{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	value, ok := f.entries[key]
	return value, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[key] = value
	return nil
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeKV) Clear(_ context.Context, prefix string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for key := range f.entries {
		if strings.HasPrefix(key, prefix) {
			delete(f.entries, key)
			removed++
		}
	}
	return removed, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	clock := newFakeClock()
	c := New(newFakeKV(), nil, Options{}, WithClock(clock.Now))
	ctx := context.Background()

	if err := c.Set(ctx, "alpha", `{"title":"Example"}`, SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok := c.Get(ctx, "alpha")
	if !ok {
		t.Fatal("expected a hit immediately after Set")
	}
	if value != `{"title":"Example"}` {
		t.Fatalf("unexpected value %q", value)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.MemoryHits != 1 || stats.Misses != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCacheMemoryTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(nil, nil, Options{MemoryTTL: time.Minute}, WithClock(clock.Now))
	ctx := context.Background()

	if err := c.Set(ctx, "alpha", "value", SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(2 * time.Minute)

	if _, ok := c.Get(ctx, "alpha"); ok {
		t.Fatal("expected a miss after the memory TTL elapsed")
	}
	stats := c.Stats()
	if stats.Expired != 1 {
		t.Fatalf("expected one expired entry, got %+v", stats)
	}
	if stats.Misses != 1 {
		t.Fatalf("expected one miss, got %+v", stats)
	}
}

func TestCacheStoreTTLExpiryIsLazy(t *testing.T) {
	clock := newFakeClock()
	store := newFakeKV()
	c := New(store, nil, Options{MemoryTTL: time.Minute, StoreTTL: time.Hour}, WithClock(clock.Now))
	ctx := context.Background()

	if err := c.Set(ctx, "alpha", "value", SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clock.Advance(30 * time.Minute)
	if _, ok := c.Get(ctx, "alpha"); !ok {
		t.Fatal("expected a store-tier hit within the store TTL")
	}

	clock.Advance(2 * time.Hour)
	if _, ok := c.Get(ctx, "alpha"); ok {
		t.Fatal("expected a miss after the store TTL elapsed")
	}
	// Lazy expiry leaves the row in place until a sweep.
	store.mu.Lock()
	remaining := len(store.entries)
	store.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("expected the expired row to remain before sweep, found %d rows", remaining)
	}
}

func TestCacheEvictsLeastRecentlyHit(t *testing.T) {
	clock := newFakeClock()
	c := New(nil, nil, Options{MemoryCapacity: 2}, WithClock(clock.Now))
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if err := c.Set(ctx, key, key, SetOptions{}); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}
	// Hitting "a" makes "b" the eviction candidate.
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatal("expected hit on a")
	}
	if err := c.Set(ctx, "c", "c", SetOptions{}); err != nil {
		t.Fatalf("Set c: %v", err)
	}

	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatal("expected a to survive")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Fatal("expected c to survive")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Fatalf("expected one eviction, got %d", got)
	}
}

func TestCachePromotesStoreHitToMemory(t *testing.T) {
	clock := newFakeClock()
	store := newFakeKV()
	c := New(store, nil, Options{}, WithClock(clock.Now))
	ctx := context.Background()

	if err := c.Set(ctx, "alpha", "value", SetOptions{Tiers: []Tier{TierStore}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if c.MemoryLen() != 0 {
		t.Fatal("store-only set must not touch the memory tier")
	}

	if _, ok := c.Get(ctx, "alpha"); !ok {
		t.Fatal("expected a store-tier hit")
	}
	stats := c.Stats()
	if stats.StoreHits != 1 || stats.Promotions != 1 {
		t.Fatalf("expected a store hit with promotion, got %+v", stats)
	}
	if c.MemoryLen() != 1 {
		t.Fatal("expected the hit to be promoted into the memory tier")
	}

	// The promoted copy serves the next read without touching the store.
	before := store.gets
	if _, ok := c.Get(ctx, "alpha"); !ok {
		t.Fatal("expected a memory-tier hit after promotion")
	}
	if store.gets != before {
		t.Fatal("promoted entry should not reach down to the store tier")
	}
}

func TestCacheRemoteHitBackfillsStoreAndMemory(t *testing.T) {
	clock := newFakeClock()
	store := newFakeKV()
	remote := newFakeKV()
	c := New(store, remote, Options{}, WithClock(clock.Now))
	ctx := context.Background()

	if err := c.Set(ctx, "alpha", "value", SetOptions{Tiers: []Tier{TierRemote}}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, ok := c.Get(ctx, "alpha")
	if !ok || value != "value" {
		t.Fatalf("expected a remote-tier hit, got %q ok=%v", value, ok)
	}
	if c.Stats().RemoteHits != 1 {
		t.Fatalf("unexpected stats %+v", c.Stats())
	}
	if len(store.entries) != 1 {
		t.Fatal("remote hit should backfill the store tier")
	}
	if c.MemoryLen() != 1 {
		t.Fatal("remote hit should backfill the memory tier")
	}
}

func TestCachePeekLeavesStateUntouched(t *testing.T) {
	clock := newFakeClock()
	c := New(newFakeKV(), nil, Options{MemoryCapacity: 2}, WithClock(clock.Now))
	ctx := context.Background()

	if err := c.Set(ctx, "alpha", "value", SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok := c.Peek(ctx, "alpha")
	if !ok || value != "value" {
		t.Fatalf("expected peek hit, got %q ok=%v", value, ok)
	}
	stats := c.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Fatalf("peek must not record statistics, got %+v", stats)
	}
	if _, ok := c.Peek(ctx, "missing"); ok {
		t.Fatal("expected peek miss for unknown key")
	}
	if c.Stats().Misses != 0 {
		t.Fatal("peek miss must not count as a miss")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	clock := newFakeClock()
	store := newFakeKV()
	c := New(store, nil, Options{}, WithClock(clock.Now))
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if err := c.Set(ctx, key, key, SetOptions{}); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}
	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("expected a to be gone after Delete")
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Fatal("expected b to remain after deleting a")
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("expected empty cache after Clear")
	}
	if len(store.entries) != 0 {
		t.Fatal("Clear should empty the store tier namespace")
	}
}

func TestCacheWarmupSeedsMemoryTier(t *testing.T) {
	clock := newFakeClock()
	c := New(nil, nil, Options{}, WithClock(clock.Now))

	c.Warmup([]WarmupEntry{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}})
	if c.MemoryLen() != 2 {
		t.Fatalf("expected two warm entries, got %d", c.MemoryLen())
	}
	if value, ok := c.Get(context.Background(), "b"); !ok || value != "2" {
		t.Fatalf("expected warm hit, got %q ok=%v", value, ok)
	}
}

func TestCacheSweepPurgesExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	c := New(nil, nil, Options{MemoryTTL: time.Minute}, WithClock(clock.Now))
	ctx := context.Background()

	if err := c.Set(ctx, "old", "1", SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if err := c.Set(ctx, "fresh", "2", SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if removed := c.Sweep(ctx); removed != 1 {
		t.Fatalf("expected one swept entry, got %d", removed)
	}
	if c.MemoryLen() != 1 {
		t.Fatalf("expected one live entry after sweep, got %d", c.MemoryLen())
	}
}

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("meta", map[string]any{"model": "m1", "fingerprint": "abc", "stage": 2})
	b := Key("meta", map[string]any{"stage": 2, "fingerprint": "abc", "model": "m1"})
	if a != b {
		t.Fatalf("parameter order changed the key: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "meta:") {
		t.Fatalf("expected prefix, got %q", a)
	}
	c := Key("meta", map[string]any{"model": "m1", "fingerprint": "abc", "stage": 3})
	if a == c {
		t.Fatal("different parameters must produce different keys")
	}
}
