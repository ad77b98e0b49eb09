package cache

import (
	"context"
	"strconv"
	"testing"
	"time"
)

var benchPayload = []byte(`{"location":"Seattle","country":"US","temperature":15.5,"feelsLike":14.9,"humidity":65,"windSpeed":10.2,"conditionCode":800,"icon":"01d","description":"clear sky","unit":"metric"}`)

// BenchmarkInMemoryCache_Get_Hit benchmarks cache Get operation on cache hit.
func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	cache := NewInMemoryCache(0)
	ctx := context.Background()
	_ = cache.Set(ctx, "current:metric:seattle", benchPayload, 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, "current:metric:seattle")
	}
}

// BenchmarkInMemoryCache_Get_Miss benchmarks cache Get operation on cache miss.
func BenchmarkInMemoryCache_Get_Miss(b *testing.B) {
	cache := NewInMemoryCache(0)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, "nonexistent")
	}
}

// BenchmarkInMemoryCache_Set benchmarks cache Set operation across distinct keys.
func BenchmarkInMemoryCache_Set(b *testing.B) {
	cache := NewInMemoryCache(8 * 1024 * 1024)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cache.Set(ctx, "current:metric:city"+strconv.Itoa(i%1000), benchPayload, 5*time.Minute)
	}
}

// BenchmarkInMemoryCache_Concurrent benchmarks concurrent cache reads.
func BenchmarkInMemoryCache_Concurrent(b *testing.B) {
	cache := NewInMemoryCache(0)
	ctx := context.Background()
	_ = cache.Set(ctx, "current:metric:seattle", benchPayload, 5*time.Minute)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _, _ = cache.Get(ctx, "current:metric:seattle")
		}
	})
}

// BenchmarkMemcachedCache_Get_Hit benchmarks Memcached Get on cache hit.
// Requires: Memcached running (skip if unavailable).
func BenchmarkMemcachedCache_Get_Hit(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping Memcached benchmark in short mode")
	}

	cache, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		b.Skipf("Memcached not available: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, "current:metric:seattle", benchPayload, 5*time.Minute); err != nil {
		b.Skipf("Memcached not available: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, "current:metric:seattle")
	}
}
