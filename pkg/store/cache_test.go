package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, found, err := c.Get(ctx, "missing"); err != nil || found {
		t.Errorf("get missing: found=%v err=%v", found, err)
	}

	if err := c.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, found, err := c.Get(ctx, "k")
	if err != nil || !found || string(data) != "v1" {
		t.Errorf("get: data=%q found=%v err=%v", data, found, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("found after delete")
	}
	// Deleting a missing key is not an error.
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, found, _ := c.Get(ctx, "k"); !found {
		t.Fatal("entry missing before expiry")
	}
	time.Sleep(20 * time.Millisecond)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("entry survived its TTL")
	}
}

func TestMemoryCache_Sweep(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "expired", []byte("v"), 5*time.Millisecond)
	c.Set(ctx, "forever", []byte("v"), 0)
	time.Sleep(10 * time.Millisecond)

	if got := c.Sweep(); got != 1 {
		t.Errorf("sweep removed %d, want 1", got)
	}
	if _, found, _ := c.Get(ctx, "forever"); !found {
		t.Error("unexpired entry swept")
	}
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("abc"), 0)
	data, _, _ := c.Get(ctx, "k")
	data[0] = 'x'

	again, _, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Error("cache contents mutated through a returned slice")
	}
}
