package cache

import (
	"fmt"
	"testing"
	"time"

	"codegraph/internal/logging"
)

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	c, err := New(opts, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("traverse", map[string]interface{}{"depth": 3, "symbol": int64(7)})
	b := Key("traverse", map[string]interface{}{"symbol": int64(7), "depth": 3})
	if a != b {
		t.Errorf("keys differ for identical params: %q vs %q", a, b)
	}

	c := Key("traverse", map[string]interface{}{"depth": 4, "symbol": int64(7)})
	if a == c {
		t.Error("keys collide for different params")
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	c := newTestCache(t, DefaultOptions())

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}

	c.Set("k", []byte("value"))
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(got) != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestOversizedValueNeverCached(t *testing.T) {
	c := newTestCache(t, Options{
		MaxEntries:   10,
		MaxSizeBytes: 100,
		TTL:          time.Minute,
		Statistics:   true,
	})

	// 26 > 100/4, must be rejected at admission
	c.Set("big", make([]byte, 26))
	if _, ok := c.Get("big"); ok {
		t.Error("oversized value was cached")
	}

	// 25 == 100/4, right at the bound
	c.Set("fits", make([]byte, 25))
	if _, ok := c.Get("fits"); !ok {
		t.Error("value at the admission bound was rejected")
	}
}

func TestEvictionStopsAtHalfCapacity(t *testing.T) {
	c := newTestCache(t, Options{
		MaxEntries:   10,
		MaxSizeBytes: 100,
		TTL:          time.Minute,
		Statistics:   true,
	})

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), []byte("0123456789")) // 10 bytes each
	}
	if got := c.Stats().Entries; got != 10 {
		t.Fatalf("entries = %d, want 10", got)
	}

	// 20 bytes does not fit; eviction runs until the entry fits or
	// utilization drops to MaxEntries/2.
	c.Set("large", make([]byte, 20))

	stats := c.Stats()
	if stats.Entries > 10 {
		t.Errorf("entries = %d, exceeds bound", stats.Entries)
	}
	if stats.SizeBytes > 100 {
		t.Errorf("sizeBytes = %d, exceeds bound", stats.SizeBytes)
	}
	if stats.Evictions == 0 {
		t.Error("expected capacity evictions to be counted")
	}
	if _, ok := c.Get("large"); !ok {
		t.Error("newly set entry missing after eviction")
	}
}

func TestLRUOrderRespectsAccess(t *testing.T) {
	c := newTestCache(t, Options{
		MaxEntries:   3,
		MaxSizeBytes: 1024,
		TTL:          time.Minute,
	})

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("c", []byte("3"))

	// Touch "a" so "b" is the least recently accessed
	c.Get("a")
	c.Set("d", []byte("4"))

	if _, ok := c.Get("b"); ok {
		t.Error("least recently accessed entry survived eviction")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently accessed entry was evicted")
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := newTestCache(t, Options{
		MaxEntries:   10,
		MaxSizeBytes: 1024,
		TTL:          10 * time.Millisecond,
		Statistics:   true,
	})

	c.Set("k", []byte("v"))
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry returned")
	}
	stats := c.Stats()
	if stats.Misses == 0 {
		t.Error("expiry did not count as a miss")
	}
	if stats.Evictions != 0 {
		t.Errorf("expiry counted as eviction: %d", stats.Evictions)
	}
}

func TestInvalidateByPattern(t *testing.T) {
	c := newTestCache(t, DefaultOptions())

	c.Set(Key("traverse:repo:1", map[string]interface{}{"symbol": 1}), []byte("a"))
	c.Set(Key("traverse:repo:1", map[string]interface{}{"symbol": 2}), []byte("b"))
	c.Set(Key("traverse:repo:2", map[string]interface{}{"symbol": 1}), []byte("c"))
	c.Set(Key("traverse:repo:10", map[string]interface{}{"symbol": 1}), []byte("d"))

	removed := c.InvalidateByPattern("repo:1:")
	if removed != 2 {
		t.Errorf("removed %d entries, want 2", removed)
	}
	if got := c.Stats().Entries; got != 2 {
		t.Errorf("entries = %d after invalidation, want 2", got)
	}

	// The terminated pattern must not sweep repo:10 along with repo:1
	if _, ok := c.Get(Key("traverse:repo:10", map[string]interface{}{"symbol": 1})); !ok {
		t.Error("entry for a different repository invalidated")
	}
}

func TestSetReplacesExistingEntry(t *testing.T) {
	c := newTestCache(t, Options{
		MaxEntries:   10,
		MaxSizeBytes: 1024,
		TTL:          time.Minute,
	})

	c.Set("k", []byte("first"))
	c.Set("k", []byte("second-longer"))

	got, ok := c.Get("k")
	if !ok || string(got) != "second-longer" {
		t.Fatalf("got %q, want replacement value", got)
	}
	if size := c.Stats().SizeBytes; size != int64(len("second-longer")) {
		t.Errorf("sizeBytes = %d after replacement, want %d", size, len("second-longer"))
	}
}

func TestPurge(t *testing.T) {
	c := newTestCache(t, DefaultOptions())
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	c.Purge()

	stats := c.Stats()
	if stats.Entries != 0 || stats.SizeBytes != 0 {
		t.Errorf("purge left %d entries / %d bytes", stats.Entries, stats.SizeBytes)
	}
}
