//go:build integration
// +build integration

package cache

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"
)

func integrationAddrs() string {
	if addrs := os.Getenv("MEMCACHED_ADDRS"); addrs != "" {
		return addrs
	}
	return "localhost:11211"
}

// TestMemcachedCache_GetSet_Integration verifies that MemcachedCache stores and
// retrieves values when a memcached server is available.
func TestMemcachedCache_GetSet_Integration(t *testing.T) {
	c, err := NewMemcachedCache(integrationAddrs(), 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	val := []byte(`{"location":"New York","temperature":12.5}`)
	if err := c.Set(ctx, "current:metric:new york", val, time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Get(ctx, "current:metric:new york")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if !bytes.Equal(got, val) {
		t.Errorf("Get() = %s, want %s", got, val)
	}
}

// TestMemcachedCache_Get_Miss_Integration verifies that MemcachedCache returns
// ok=false when the key does not exist.
func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	c, err := NewMemcachedCache(integrationAddrs(), 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}
