package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCache_PutGet(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	key := "test-key"
	value := json.RawMessage(`{"fields":{"title":"x"},"errors":[]}`)

	// Miss before put
	if _, ok := c.Get(key); ok {
		t.Error("Expected cache miss before put")
	}

	if err := c.Put(key, value); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Expected cache hit after put")
	}
	if string(got) != string(value) {
		t.Errorf("Got = %s, want %s", got, value)
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 1) // 1 second TTL
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	key := "expire-test"
	if err := c.Put(key, json.RawMessage(`"data"`)); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	if _, ok := c.Get(key); !ok {
		t.Error("Expected cache hit before expiration")
	}

	time.Sleep(1100 * time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Error("Expected cache miss after TTL expiration")
	}
}

func TestCache_Disabled(t *testing.T) {
	c, err := New(false, "", 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.Enabled() {
		t.Error("Cache should be disabled")
	}

	if err := c.Put("key", json.RawMessage(`1`)); err != nil {
		t.Errorf("Put on disabled cache should not error: %v", err)
	}
	if _, ok := c.Get("key"); ok {
		t.Error("Get on disabled cache should always miss")
	}
	if n, err := c.Clear(); err != nil || n != 0 {
		t.Errorf("Clear on disabled cache = (%d, %v), want (0, nil)", n, err)
	}
}

func TestCache_Nil(t *testing.T) {
	var c *Cache
	if c.Enabled() {
		t.Error("nil cache should report disabled")
	}
	if _, ok := c.Get("k"); ok {
		t.Error("nil cache should miss")
	}
	if err := c.Put("k", json.RawMessage(`1`)); err != nil {
		t.Errorf("Put on nil cache: %v", err)
	}
}

func TestCache_Clear(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		if err := c.Put(key, json.RawMessage(`"data"`)); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}

	if n := countJSON(t, dir); n != 5 {
		t.Fatalf("Expected 5 cache entries, got %d", n)
	}

	removed, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if removed != 5 {
		t.Errorf("removed = %d, want 5", removed)
	}
	if n := countJSON(t, dir); n != 0 {
		t.Errorf("Expected 0 cache entries after clear, got %d", n)
	}
}

func TestCache_GetStats(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}

	c.Put("key1", json.RawMessage(`"value1"`))
	c.Put("key2", json.RawMessage(`"value2"`))

	stats, err = c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.TotalBytes <= 0 {
		t.Error("TotalBytes should be > 0")
	}
	if stats.Dir != dir {
		t.Errorf("Dir = %q, want %q", stats.Dir, dir)
	}
}

func TestHashKey(t *testing.T) {
	h1 := HashKey("test")
	h2 := HashKey("test")
	h3 := HashKey("other")

	if h1 != h2 {
		t.Error("Same input should produce same hash")
	}
	if h1 == h3 {
		t.Error("Different input should produce different hash")
	}
	if len(h1) != 64 { // SHA-256 hex = 64 chars
		t.Errorf("Hash length = %d, want 64", len(h1))
	}
}

func TestBuildCacheKey(t *testing.T) {
	params := []byte(`{"corpus":"x"}`)
	k1 := BuildCacheKey("https://phab.example.com/api/", "differential.parsecommitmessage", params)
	k2 := BuildCacheKey("https://phab.example.com/api/", "differential.parsecommitmessage", params)
	k3 := BuildCacheKey("https://other.example.com/api/", "differential.parsecommitmessage", params)

	if k1 != k2 {
		t.Error("Same inputs should produce same cache key")
	}
	if k1 == k3 {
		t.Error("Different endpoint should produce different cache key")
	}
}

func countJSON(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n
}
