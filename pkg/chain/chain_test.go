package chain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/cache/memory"
	"places-cache/pkg/cache/mock"
	metricsmem "places-cache/pkg/metrics/memory"
	"places-cache/pkg/resilience"
)

func entryAt(t *testing.T, key string, value interface{}, created time.Time, ttl time.Duration) cache.CacheEntry {
	t.Helper()
	e, err := cache.NewEntry(key, value, created, ttl)
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	return e
}

func hitLayer(name string, e cache.CacheEntry) *mock.MockLayer {
	l := mock.NewMockLayer(name)
	l.GetFunc = func(context.Context, cache.Table, string) (*cache.CacheEntry, error) {
		out := e
		return &out, nil
	}
	return l
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		layers      []cache.CacheLayer
		expectError bool
		expectedLen int
	}{
		{name: "empty layers", layers: []cache.CacheLayer{}, expectError: true},
		{name: "single layer", layers: []cache.CacheLayer{mock.NewMockLayer("L1")}, expectedLen: 1},
		{
			name:        "multiple layers",
			layers:      []cache.CacheLayer{mock.NewMockLayer("L1"), mock.NewMockLayer("L2"), mock.NewMockLayer("L3")},
			expectedLen: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := New(tt.layers...)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			defer chain.Close()

			if chain.Len() != tt.expectedLen {
				t.Errorf("Expected %d layers, got %d", tt.expectedLen, chain.Len())
			}
		})
	}
}

func TestChain_Get_L1Hit(t *testing.T) {
	e := entryAt(t, "details_1", "v", time.Now(), time.Hour)
	l1 := hitLayer("L1", e)
	l2 := mock.NewMockLayer("L2")

	chain, _ := New(l1, l2)
	defer chain.Close()

	got, err := chain.Get(context.Background(), cache.TableBusiness, "details_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Payload) != string(e.Payload) {
		t.Errorf("Payload = %s, want %s", got.Payload, e.Payload)
	}
	if l2.GetCalls() != 0 {
		t.Errorf("L2 should not be consulted on an L1 hit, got %d calls", l2.GetCalls())
	}
}

func TestChain_Get_L2HitWarmsL1(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	e := entryAt(t, "details_1", "v", created, 180*24*time.Hour)

	l1 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1"})
	l2 := hitLayer("L2", e)

	chain, _ := New(l1, l2)
	defer chain.Close()

	if _, err := chain.Get(context.Background(), cache.TableBusiness, "details_1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := chain.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	warmed, err := l1.Get(context.Background(), cache.TableBusiness, "details_1")
	if err != nil {
		t.Fatalf("Expected L1 warmed, got %v", err)
	}
	if !warmed.CreatedAt.Equal(e.CreatedAt) || !warmed.ExpiresAt.Equal(e.ExpiresAt) {
		t.Errorf("Warm-up must preserve timestamps: got %v/%v", warmed.CreatedAt, warmed.ExpiresAt)
	}
}

func TestChain_Get_AllMiss(t *testing.T) {
	chain, _ := New(mock.NewMockLayer("L1"), mock.NewMockLayer("L2"))
	defer chain.Close()

	_, err := chain.Get(context.Background(), cache.TableRecommendations, "missing")
	if !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestChain_Get_LayerErrorFallsThrough(t *testing.T) {
	e := entryAt(t, "k", "v", time.Now(), time.Hour)

	broken := mock.NewMockLayer("L1")
	broken.GetFunc = func(context.Context, cache.Table, string) (*cache.CacheEntry, error) {
		return nil, cache.ErrLayerUnavailable
	}

	chain, _ := New(broken, hitLayer("L2", e))
	defer chain.Close()

	if _, err := chain.Get(context.Background(), cache.TableBusiness, "k"); err != nil {
		t.Fatalf("Expected L2 to answer, got %v", err)
	}
}

func TestChain_Get_AllLayersFail(t *testing.T) {
	broken := mock.NewMockLayer("L1")
	broken.GetFunc = func(context.Context, cache.Table, string) (*cache.CacheEntry, error) {
		return nil, cache.ErrLayerUnavailable
	}

	chain, _ := New(broken)
	defer chain.Close()

	_, err := chain.Get(context.Background(), cache.TableBusiness, "k")
	if !cache.IsUnavailable(err) {
		t.Errorf("Expected ErrLayerUnavailable when no layer answered, got %v", err)
	}
}

func TestChain_Get_SingleFlight(t *testing.T) {
	e := entryAt(t, "k", "v", time.Now(), time.Hour)

	var calls int64
	release := make(chan struct{})
	slow := mock.NewMockLayer("L1")
	slow.GetFunc = func(context.Context, cache.Table, string) (*cache.CacheEntry, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		out := e
		return &out, nil
	}

	chain, _ := NewWithConfig(Config{}, slow)
	defer chain.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := chain.Get(context.Background(), cache.TableBusiness, "k"); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("Expected 1 layer call with single-flight, got %d", got)
	}
}

func TestChain_Get_JoinerSurvivesFirstCallerCancel(t *testing.T) {
	e := entryAt(t, "k", "v", time.Now(), time.Hour)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := mock.NewMockLayer("L1")
	slow.GetFunc = func(ctx context.Context, _ cache.Table, _ string) (*cache.CacheEntry, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		out := e
		return &out, nil
	}

	chain, _ := NewWithConfig(Config{
		Resilience: func(int) resilience.ResilientConfig {
			return resilience.DefaultResilientConfig().WithTimeout(time.Second)
		},
	}, slow)
	defer chain.Close()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	go chain.Get(firstCtx, cache.TableBusiness, "k")
	<-started

	joined := make(chan error, 1)
	go func() {
		_, err := chain.Get(context.Background(), cache.TableBusiness, "k")
		joined <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-joined; err != nil {
		t.Errorf("joiner failed after first caller cancelled: %v", err)
	}
	if got := slow.GetCalls(); got != 1 {
		t.Errorf("Expected 1 layer call, got %d", got)
	}
}

func TestChain_Get_TablesAreIndependentFlights(t *testing.T) {
	l1 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1"})
	chain, _ := New(l1)
	defer chain.Close()

	ctx := context.Background()
	chain.Upsert(ctx, cache.TableBusiness, entryAt(t, "same", "business", time.Now(), time.Hour))

	if _, err := chain.Get(ctx, cache.TableRecommendations, "same"); !cache.IsNotFound(err) {
		t.Errorf("Key in another table must miss, got %v", err)
	}
}

func TestChain_Upsert(t *testing.T) {
	l1 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1"})
	l2 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L2"})

	chain, _ := New(l1, l2)
	defer chain.Close()

	ctx := context.Background()
	if err := chain.Upsert(ctx, cache.TableBusiness, entryAt(t, "k", "v", time.Now(), time.Hour)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	for _, l := range []*memory.MemoryCache{l1, l2} {
		if _, err := l.Get(ctx, cache.TableBusiness, "k"); err != nil {
			t.Errorf("%s: expected entry, got %v", l.Name(), err)
		}
	}
}

func TestChain_Upsert_PartialFailure(t *testing.T) {
	failing := mock.NewMockLayer("L1")
	failing.UpsertFunc = func(context.Context, cache.Table, cache.CacheEntry) error {
		return cache.ErrLayerUnavailable
	}
	l2 := mock.NewMockLayer("L2")

	chain, _ := New(failing, l2)
	defer chain.Close()

	err := chain.Upsert(context.Background(), cache.TableBusiness, entryAt(t, "k", "v", time.Now(), time.Hour))
	if !errors.Is(err, cache.ErrLayerUnavailable) {
		t.Errorf("Expected joined layer error, got %v", err)
	}
	if l2.UpsertCalls() != 1 {
		t.Errorf("L2 should still be written, got %d upserts", l2.UpsertCalls())
	}
}

func TestChain_DeleteReportsLargestLayerCount(t *testing.T) {
	l1 := mock.NewMockLayer("L1")
	l1.DeleteExpiredFunc = func(context.Context, cache.Table, time.Time) (int64, error) { return 2, nil }
	l2 := mock.NewMockLayer("L2")
	l2.DeleteExpiredFunc = func(context.Context, cache.Table, time.Time) (int64, error) { return 5, nil }

	chain, _ := New(l1, l2)
	defer chain.Close()

	removed, err := chain.DeleteExpired(context.Background(), cache.TableBusiness, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 5 {
		t.Errorf("Expected 5 removed, got %d", removed)
	}
}

func TestChain_DeleteCreatedSince_AllLayers(t *testing.T) {
	l1 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1"})
	l2 := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L2"})
	chain, _ := New(l1, l2)
	defer chain.Close()

	ctx := context.Background()
	now := time.Now()
	chain.Upsert(ctx, cache.TableRecommendations, entryAt(t, "recent", "v", now.Add(-time.Hour), 24*time.Hour))

	removed, err := chain.DeleteCreatedSince(ctx, cache.TableRecommendations, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteCreatedSince failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, err := chain.Get(ctx, cache.TableRecommendations, "recent"); !cache.IsNotFound(err) {
		t.Errorf("Expected miss after force clear, got %v", err)
	}
}

func TestChain_Close(t *testing.T) {
	l1 := mock.NewMockLayer("L1")
	l2 := mock.NewMockLayer("L2")
	l2.CloseFunc = func() error { return errors.New("close failed") }

	chain, _ := New(l1, l2)
	if err := chain.Close(); err == nil {
		t.Error("Expected close error to surface")
	}
	if l1.CloseCalls() != 1 || l2.CloseCalls() != 1 {
		t.Errorf("Expected every layer closed once, got %d / %d", l1.CloseCalls(), l2.CloseCalls())
	}
}

func TestChain_String(t *testing.T) {
	chain, _ := New(mock.NewMockLayer("memory"), mock.NewMockLayer("postgres"))
	defer chain.Close()

	if got, want := chain.String(), "chain(2 layers): memory -> postgres"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := chain.Name(), "chain(memory,postgres)"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}

func TestChain_Metrics(t *testing.T) {
	e := entryAt(t, "k", "v", time.Now(), time.Hour)
	mc := metricsmem.NewMemoryCollector()

	chain, _ := NewWithConfig(Config{Metrics: mc}, mock.NewMockLayer("L1"), hitLayer("L2", e))
	defer chain.Close()

	ctx := context.Background()
	chain.Get(ctx, cache.TableBusiness, "k")
	chain.Flush(time.Second)

	snap := mc.Snapshot()
	if snap.ChainHits != 1 || snap.ChainHitsByLayer[1] != 1 {
		t.Errorf("Expected one chain hit at layer 1, got %d (%v)", snap.ChainHits, snap.ChainHitsByLayer)
	}
	if snap.LayerMetrics["L1"].Misses != 1 {
		t.Errorf("Expected L1 miss recorded, got %d", snap.LayerMetrics["L1"].Misses)
	}
	if stats := chain.WriterStats(); stats.TotalWrites != 1 {
		t.Errorf("Expected one warm-up write, got %d", stats.TotalWrites)
	}
}
