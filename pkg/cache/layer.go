package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Table names one of the two logical caches shared by the lookup handlers
// and the cleanup jobs.
type Table string

const (
	// TableRecommendations holds filter/search derived results.
	TableRecommendations Table = "recommendations_cache"

	// TableBusiness holds per-place business details.
	TableBusiness Table = "business_cache"
)

// Tables lists every table in the order cleanup jobs visit them.
var Tables = []Table{TableRecommendations, TableBusiness}

// String returns the table name.
func (t Table) String() string {
	return string(t)
}

// Valid reports whether t is a known table.
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// CacheLayer defines the interface that all cache store implementations must satisfy.
// Every operation is scoped to a table; reads and upserts are independent statements
// with no transactional guarantees between them.
type CacheLayer interface {
	// Get returns the entry stored under key.
	// Returns ErrKeyNotFound if the key is absent or the entry has expired.
	// Get never deletes expired rows; that is left to the cleanup jobs.
	Get(ctx context.Context, table Table, key string) (*CacheEntry, error)

	// Upsert stores the entry, overwriting any entry with the same key.
	Upsert(ctx context.Context, table Table, entry CacheEntry) error

	// DeleteExpired removes every entry whose ExpiresAt is before now and
	// returns the number of removed entries.
	DeleteExpired(ctx context.Context, table Table, now time.Time) (int64, error)

	// DeleteCreatedSince removes every entry created at or after since,
	// regardless of expiry, and returns the number of removed entries.
	DeleteCreatedSince(ctx context.Context, table Table, since time.Time) (int64, error)

	// Name returns the identifier for this layer (e.g., "memory", "redis", "postgres").
	// Used for logging, metrics, and debugging.
	Name() string

	// Close releases any resources held by the layer.
	Close() error
}

// CacheEntry is one cached row: an opaque JSON payload with its write and
// expiry timestamps.
type CacheEntry struct {
	// Key identifies the logical request signature.
	Key string `json:"cache_key"`

	// Payload is the normalized provider response or derived result.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the entry stops being servable.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry marshals value and builds an entry created at now that expires after ttl.
func NewEntry(key string, value interface{}, now time.Time, ttl time.Duration) (CacheEntry, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return CacheEntry{}, WrapError(err, "entry", "marshal")
	}

	return CacheEntry{
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsExpired reports whether the entry is past its expiry at the given time.
// An entry expiring exactly at now is treated as expired.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TimeToLive returns the remaining time-to-live at now.
// Returns 0 if already expired.
func (e *CacheEntry) TimeToLive(now time.Time) time.Duration {
	if e.IsExpired(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// Decode unmarshals the payload into v.
func (e *CacheEntry) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return WrapError(err, e.Key, "unmarshal")
	}
	return nil
}
