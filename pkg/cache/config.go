package cache

import "time"

// TTLPolicy holds the expiry policy applied when writing into a table.
// TTL is a per-write parameter: different tables (and callers) choose different values.
type TTLPolicy struct {
	// Table is the table the policy applies to
	Table Table

	// DefaultTTL is the time-to-live used when a write does not specify one
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL for entries in this table
	// Values exceeding this will be capped to MaxTTL
	MaxTTL time.Duration
}

// Validate checks if the policy is valid.
func (p TTLPolicy) Validate() error {
	if !p.Table.Valid() {
		return ErrInvalidTable
	}

	if p.DefaultTTL <= 0 {
		return ErrInvalidValue
	}

	if p.MaxTTL < 0 {
		return ErrInvalidValue
	}

	if p.MaxTTL > 0 && p.DefaultTTL > p.MaxTTL {
		return ErrInvalidValue
	}

	return nil
}

// EffectiveTTL returns the effective TTL for a given duration.
// If ttl is 0, returns DefaultTTL.
// If ttl exceeds MaxTTL, returns MaxTTL.
// Otherwise returns the original ttl.
func (p TTLPolicy) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return p.DefaultTTL
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		return p.MaxTTL
	}

	return ttl
}
