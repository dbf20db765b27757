package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024)

	if err := cache.Put("key1", []byte("value1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, ok := cache.Get("key1")
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(value) != "value1" {
		t.Errorf("Get returned wrong value: got %s, want value1", value)
	}

	if _, ok := cache.Get("missing"); ok {
		t.Error("Get should return false for missing key")
	}

	if got := cache.Stats().Size; got != int64(len("value1")) {
		t.Errorf("Size = %d, want %d", got, len("value1"))
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(30)

	cache.Put("key1", []byte("0123456789"))
	cache.Put("key2", []byte("0123456789"))
	cache.Put("key3", []byte("0123456789"))

	// Touch key1 so key2 becomes the eviction candidate.
	cache.Get("key1")
	cache.Put("key4", []byte("0123456789"))

	if got := cache.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
	if _, ok := cache.Get("key2"); ok {
		t.Error("key2 should have been evicted")
	}
	if _, ok := cache.Get("key1"); !ok {
		t.Error("key1 should survive, it was recently used")
	}
	if _, ok := cache.Get("key4"); !ok {
		t.Error("key4 should be present")
	}
	if got := cache.Stats().ItemCount; got != 3 {
		t.Errorf("ItemCount = %d, want 3", got)
	}
}

func TestMemoryCache_ItemTooLarge(t *testing.T) {
	cache := NewMemoryCache(10)

	if err := cache.Put("big", make([]byte, 11)); err != ErrItemTooLarge {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestMemoryCache_UpdateExisting(t *testing.T) {
	cache := NewMemoryCache(100)

	cache.Put("key", []byte("short"))
	cache.Put("key", []byte("a longer value"))

	value, _ := cache.Get("key")
	if string(value) != "a longer value" {
		t.Errorf("got %q after update", value)
	}
	if got := cache.Stats().Size; got != int64(len("a longer value")) {
		t.Errorf("Size = %d, want %d", got, len("a longer value"))
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(100)
	cache.Put("key", []byte("value"))

	cache.Get("key")
	cache.Get("key")
	cache.Get("missing")

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Hits/Misses = %d/%d, want 2/1", stats.Hits, stats.Misses)
	}
	if stats.ItemCount != 1 {
		t.Errorf("ItemCount = %d, want 1", stats.ItemCount)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Errorf("HitRate = %f, want ~0.667", stats.HitRate)
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(10000)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d-%d", g, i%10)
				cache.Put(key, []byte("value"))
				cache.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if got := cache.Stats().Size; got > 10000 {
		t.Errorf("Size %d exceeds capacity", got)
	}
}

func BenchmarkMemoryCache_Get(b *testing.B) {
	cache := NewMemoryCache(1 << 20)
	for i := 0; i < 1000; i++ {
		cache.Put(fmt.Sprintf("key-%d", i), []byte("s-a1-w-a2-d-i-i"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get(fmt.Sprintf("key-%d", i%1000))
	}
}
