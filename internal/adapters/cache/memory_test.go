package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "settings:panel", []byte("v1"), time.Minute)
	val, ok := c.Get(ctx, "settings:panel")
	if !ok || string(val) != "v1" {
		t.Fatalf("expected v1, got %q (found=%v)", val, ok)
	}

	if err := c.Delete(ctx, "settings:panel"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := c.Get(ctx, "settings:panel"); ok {
		t.Error("expected key to be deleted")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short", []byte("x"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(ctx, "short"); ok {
		t.Error("expected expired item to be missing")
	}

	c.Cleanup()
	s := c.getShard("short")
	s.mu.RLock()
	_, stillThere := s.items["short"]
	s.mu.RUnlock()
	if stillThere {
		t.Error("Cleanup should remove expired items")
	}
}

func TestMemoryCache_Flush(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}
	c.Flush()
	for i := 0; i < 50; i++ {
		if _, ok := c.Get(ctx, fmt.Sprintf("k%d", i)); ok {
			t.Fatalf("k%d survived Flush", i)
		}
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := 0; j < 200; j++ {
				c.Set(ctx, key, []byte{byte(j)}, time.Second)
				c.Get(ctx, key)
				if j%50 == 0 {
					_ = c.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
}
