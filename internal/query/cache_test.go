package query

import (
	"testing"
	"time"
)

func TestCacheHitWithinTTL(t *testing.T) {
	c := newTTLCache(5 * time.Minute)
	clock := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.set("k", Result{Total: 3})
	clock = clock.Add(4 * time.Minute)
	got, ok := c.get("k")
	if !ok || got.Total != 3 {
		t.Fatalf("get = %+v, %v; want hit", got, ok)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c := newTTLCache(5 * time.Minute)
	clock := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.set("k", Result{Total: 3})
	clock = clock.Add(5 * time.Minute)
	if _, ok := c.get("k"); ok {
		t.Fatal("entry survived past TTL")
	}
	if c.len() != 0 {
		t.Errorf("expired entry not evicted, len = %d", c.len())
	}
}

func TestCacheInvalidateAll(t *testing.T) {
	c := newTTLCache(time.Minute)
	c.set("a", Result{})
	c.set("b", Result{})
	c.invalidate()
	if c.len() != 0 {
		t.Errorf("len after invalidate = %d, want 0", c.len())
	}
}

func TestCacheInvalidateKey(t *testing.T) {
	c := newTTLCache(time.Minute)
	c.set("a", Result{})
	c.set("b", Result{})
	c.invalidate("a")
	if _, ok := c.get("a"); ok {
		t.Error("invalidated key still cached")
	}
	if _, ok := c.get("b"); !ok {
		t.Error("untouched key evicted")
	}
}

func TestCacheDefaultTTL(t *testing.T) {
	c := newTTLCache(0)
	if c.ttl != DefaultCacheTTL {
		t.Errorf("ttl = %s, want %s", c.ttl, DefaultCacheTTL)
	}
}
