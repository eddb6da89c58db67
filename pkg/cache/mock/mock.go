package mock

import (
	"context"
	"sync/atomic"
	"time"

	"places-cache/pkg/cache"
)

// MockLayer is a mock implementation of cache.CacheLayer for testing.
// It allows injecting custom behavior for each method and tracks call counts.
type MockLayer struct {
	// Function hooks - set these to customize behavior
	GetFunc                func(ctx context.Context, table cache.Table, key string) (*cache.CacheEntry, error)
	UpsertFunc             func(ctx context.Context, table cache.Table, entry cache.CacheEntry) error
	DeleteExpiredFunc      func(ctx context.Context, table cache.Table, now time.Time) (int64, error)
	DeleteCreatedSinceFunc func(ctx context.Context, table cache.Table, since time.Time) (int64, error)
	NameFunc               func() string
	CloseFunc              func() error

	// Call tracking (must use atomic operations for race-free access)
	getCalls    int64
	upsertCalls int64
	deleteCalls int64
	closeCalls  int64
}

// Get implements CacheLayer.Get with optional custom behavior.
// Without a hook it reports a miss.
func (m *MockLayer) Get(ctx context.Context, table cache.Table, key string) (*cache.CacheEntry, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, table, key)
	}
	return nil, cache.ErrKeyNotFound
}

// Upsert implements CacheLayer.Upsert with optional custom behavior.
func (m *MockLayer) Upsert(ctx context.Context, table cache.Table, entry cache.CacheEntry) error {
	atomic.AddInt64(&m.upsertCalls, 1)
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, table, entry)
	}
	return nil
}

// DeleteExpired implements CacheLayer.DeleteExpired with optional custom behavior.
func (m *MockLayer) DeleteExpired(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, table, now)
	}
	return 0, nil
}

// DeleteCreatedSince implements CacheLayer.DeleteCreatedSince with optional custom behavior.
func (m *MockLayer) DeleteCreatedSince(ctx context.Context, table cache.Table, since time.Time) (int64, error) {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteCreatedSinceFunc != nil {
		return m.DeleteCreatedSinceFunc(ctx, table, since)
	}
	return 0, nil
}

// Name implements CacheLayer.Name with optional custom behavior.
func (m *MockLayer) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock"
}

// Close implements CacheLayer.Close with optional custom behavior.
func (m *MockLayer) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// GetCalls returns the number of Get calls (thread-safe).
func (m *MockLayer) GetCalls() int {
	return int(atomic.LoadInt64(&m.getCalls))
}

// UpsertCalls returns the number of Upsert calls (thread-safe).
func (m *MockLayer) UpsertCalls() int {
	return int(atomic.LoadInt64(&m.upsertCalls))
}

// DeleteCalls returns the number of DeleteExpired and DeleteCreatedSince calls (thread-safe).
func (m *MockLayer) DeleteCalls() int {
	return int(atomic.LoadInt64(&m.deleteCalls))
}

// CloseCalls returns the number of Close calls (thread-safe).
func (m *MockLayer) CloseCalls() int {
	return int(atomic.LoadInt64(&m.closeCalls))
}

// NewMockLayer creates a new MockLayer with default behavior.
// By default Get misses and all other operations succeed.
func NewMockLayer(name string) *MockLayer {
	return &MockLayer{
		NameFunc: func() string { return name },
	}
}
