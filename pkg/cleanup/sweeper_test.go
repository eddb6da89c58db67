package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/cache/memory"
	"places-cache/pkg/cache/mock"
	metricsmem "places-cache/pkg/metrics/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func put(t *testing.T, store cache.CacheLayer, table cache.Table, key string, created time.Time, ttl time.Duration) {
	t.Helper()
	entry, err := cache.NewEntry(key, map[string]string{"k": key}, created, ttl)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), table, entry))
}

func TestNewSweeper_RequiresStore(t *testing.T) {
	_, err := NewSweeper(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestSweep_RemovesExpiredFromBothTables(t *testing.T) {
	c := &clock{now: t0}
	store := memory.NewMemoryCache(memory.MemoryCacheConfig{Now: c.Now})
	mc := metricsmem.NewMemoryCollector()

	put(t, store, cache.TableRecommendations, "filter_old", t0.Add(-48*time.Hour), 24*time.Hour)
	put(t, store, cache.TableRecommendations, "filter_new", t0.Add(-time.Hour), 24*time.Hour)
	put(t, store, cache.TableBusiness, "details_old", t0.Add(-200*24*time.Hour), 180*24*time.Hour)
	put(t, store, cache.TableBusiness, "details_new", t0.Add(-time.Hour), 180*24*time.Hour)

	s, err := NewSweeper(store, DefaultConfig(), WithClock(c.Now), WithMetrics(mc))
	require.NoError(t, err)

	results := s.Sweep(context.Background())
	assert.Equal(t, TableResult{Success: true, Removed: 1}, results["recommendations_cache"])
	assert.Equal(t, TableResult{Success: true, Removed: 1}, results["business_cache"])

	_, err = store.Get(context.Background(), cache.TableRecommendations, "filter_new")
	assert.NoError(t, err)
	_, err = store.Get(context.Background(), cache.TableBusiness, "details_new")
	assert.NoError(t, err)

	// Idempotent
	results = s.Sweep(context.Background())
	assert.Equal(t, int64(0), results["recommendations_cache"].Removed)
	assert.Equal(t, int64(0), results["business_cache"].Removed)

	snap := mc.Snapshot()
	assert.Equal(t, int64(1), snap.CleanupRemoved[JobSweep]["business_cache"])
}

func TestSweep_TableFailureDoesNotStopOthers(t *testing.T) {
	layer := mock.NewMockLayer("flaky")
	layer.DeleteExpiredFunc = func(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
		if table == cache.TableRecommendations {
			return 0, errors.New("connection reset")
		}
		return 3, nil
	}

	s, err := NewSweeper(layer, DefaultConfig())
	require.NoError(t, err)

	results := s.Sweep(context.Background())
	assert.False(t, results["recommendations_cache"].Success)
	assert.Equal(t, "connection reset", results["recommendations_cache"].Error)
	assert.Equal(t, TableResult{Success: true, Removed: 3}, results["business_cache"])
}

func TestTrigger_ReturnsBeforeSweepFinishes(t *testing.T) {
	release := make(chan struct{})
	var calls int64

	layer := mock.NewMockLayer("slow")
	layer.DeleteExpiredFunc = func(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
		<-release
		atomic.AddInt64(&calls, 1)
		return 0, nil
	}

	s, err := NewSweeper(layer, DefaultConfig(), WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	ack := s.Trigger()
	assert.Equal(t, "Cache cleanup initiated", ack.Message)
	assert.Equal(t, t0, ack.Timestamp)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestTrigger_DetachedFromCaller(t *testing.T) {
	var sawCanceled int64
	layer := mock.NewMockLayer("store")
	layer.DeleteExpiredFunc = func(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
		if ctx.Err() != nil {
			atomic.AddInt64(&sawCanceled, 1)
		}
		return 0, nil
	}

	s, err := NewSweeper(layer, DefaultConfig())
	require.NoError(t, err)

	s.Trigger()
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, int64(0), atomic.LoadInt64(&sawCanceled))
}

func TestWait_HonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	layer := mock.NewMockLayer("stuck")
	layer.DeleteExpiredFunc = func(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
		<-release
		return 0, nil
	}

	s, err := NewSweeper(layer, DefaultConfig())
	require.NoError(t, err)
	s.Trigger()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestForceClear_RemovesRecentRows(t *testing.T) {
	c := &clock{now: t0}
	store := memory.NewMemoryCache(memory.MemoryCacheConfig{Now: c.Now})

	put(t, store, cache.TableBusiness, "details_recent", t0.Add(-time.Hour), 180*24*time.Hour)
	put(t, store, cache.TableBusiness, "details_older", t0.Add(-25*time.Hour), 180*24*time.Hour)
	put(t, store, cache.TableRecommendations, "filter_recent", t0.Add(-23*time.Hour), 24*time.Hour)

	s, err := NewSweeper(store, DefaultConfig(), WithClock(c.Now))
	require.NoError(t, err)

	result, err := s.ForceClear(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, t0.Add(-24*time.Hour), result.ClearedTime)
	assert.Equal(t, int64(1), result.Tables["business_cache"].Removed)
	assert.Equal(t, int64(1), result.Tables["recommendations_cache"].Removed)

	_, err = store.Get(context.Background(), cache.TableBusiness, "details_recent")
	assert.True(t, cache.IsNotFound(err))
	_, err = store.Get(context.Background(), cache.TableBusiness, "details_older")
	assert.NoError(t, err)

	again, err := s.ForceClear(context.Background())
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Equal(t, int64(0), again.Tables["business_cache"].Removed)
}

func TestForceClear_ReportsPerTableFailure(t *testing.T) {
	layer := mock.NewMockLayer("flaky")
	layer.DeleteCreatedSinceFunc = func(ctx context.Context, table cache.Table, since time.Time) (int64, error) {
		if table == cache.TableBusiness {
			return 0, errors.New("permission denied")
		}
		return 2, nil
	}

	s, err := NewSweeper(layer, DefaultConfig())
	require.NoError(t, err)

	result, err := s.ForceClear(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, int64(2), result.Tables["recommendations_cache"].Removed)
	assert.Equal(t, "permission denied", result.Tables["business_cache"].Error)

	body, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"cleared_time"`)
	assert.Contains(t, string(body), `"business_cache":{"success":false,"removed":0,"error":"permission denied"}`)
}

func TestForceClear_CanceledContext(t *testing.T) {
	s, err := NewSweeper(mock.NewMockLayer("store"), DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.ForceClear(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
