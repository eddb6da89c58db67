package chain

import (
	"context"
	"testing"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/cache/memory"
)

var ttlNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func ttlEntry(ttl time.Duration) cache.CacheEntry {
	return cache.CacheEntry{Key: "k", Payload: []byte(`"v"`), CreatedAt: ttlNow, ExpiresAt: ttlNow.Add(ttl)}
}

func TestUniformTTLStrategy(t *testing.T) {
	s := &UniformTTLStrategy{}
	e := ttlEntry(time.Hour)

	for i := 0; i < 3; i++ {
		if got := s.ExpiresAt(i, 3, e, ttlNow); !got.Equal(e.ExpiresAt) {
			t.Errorf("layer %d: got %v, want %v", i, got, e.ExpiresAt)
		}
	}
}

func TestCustomTTLStrategy(t *testing.T) {
	s := &CustomTTLStrategy{MaxTTLs: []time.Duration{10 * time.Minute, 0}}
	long := ttlEntry(180 * 24 * time.Hour)
	short := ttlEntry(time.Minute)

	if got := s.ExpiresAt(0, 3, long, ttlNow); !got.Equal(ttlNow.Add(10 * time.Minute)) {
		t.Errorf("L1 should be capped at 10m, got %v", got)
	}
	if got := s.ExpiresAt(0, 3, short, ttlNow); !got.Equal(short.ExpiresAt) {
		t.Errorf("cap must never extend an entry, got %v", got)
	}
	if got := s.ExpiresAt(1, 3, long, ttlNow); !got.Equal(long.ExpiresAt) {
		t.Errorf("zero cap leaves expiry unchanged, got %v", got)
	}
	if got := s.ExpiresAt(2, 3, long, ttlNow); !got.Equal(long.ExpiresAt) {
		t.Errorf("missing cap leaves expiry unchanged, got %v", got)
	}
}

func TestChain_WithCustomTTLStrategy(t *testing.T) {
	l1 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1", Now: func() time.Time { return ttlNow }})
	l2 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L2", Now: func() time.Time { return ttlNow }})

	chain, err := NewWithConfig(Config{
		TTLStrategy: &CustomTTLStrategy{MaxTTLs: []time.Duration{time.Hour}},
		Now:         func() time.Time { return ttlNow },
	}, l1, l2)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	defer chain.Close()

	ctx := context.Background()
	e := ttlEntry(180 * 24 * time.Hour)
	if err := chain.Upsert(ctx, cache.TableBusiness, e); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got1, _ := l1.Get(ctx, cache.TableBusiness, "k")
	got2, _ := l2.Get(ctx, cache.TableBusiness, "k")

	if !got1.ExpiresAt.Equal(ttlNow.Add(time.Hour)) {
		t.Errorf("L1 copy should expire in 1h, got %v", got1.ExpiresAt)
	}
	if !got2.ExpiresAt.Equal(e.ExpiresAt) {
		t.Errorf("L2 copy should keep full expiry, got %v", got2.ExpiresAt)
	}
	if !got1.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt must be preserved, got %v", got1.CreatedAt)
	}
}
