package lookup

import (
	"errors"
	"fmt"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/places"
)

// Config holds lookup tunables.
type Config struct {
	// BusinessTTL is how long cached business details are served
	BusinessTTL time.Duration `yaml:"businessTTL" default:"4320h"`

	// RecommendationsTTL is how long cached filter results are served
	RecommendationsTTL time.Duration `yaml:"recommendationsTTL" default:"24h"`

	// SearchRadiusMeters is the radius sent with a search location bias
	SearchRadiusMeters int `yaml:"searchRadiusMeters" default:"50000"`

	// DefaultSearchLimit applies when a search sets no limit
	DefaultSearchLimit int `yaml:"defaultSearchLimit" default:"5"`

	// MaxSearchLimit caps the search limit
	MaxSearchLimit int `yaml:"maxSearchLimit" default:"20"`

	// MaxBatchSize caps the number of ids in one details request
	MaxBatchSize int `yaml:"maxBatchSize" default:"20"`

	// DetailsConcurrency bounds in-flight provider calls per batch
	DetailsConcurrency int `yaml:"detailsConcurrency" default:"20"`

	// FilterConcurrency bounds in-flight filters per recommendations request
	FilterConcurrency int `yaml:"filterConcurrency" default:"4"`

	// NegativeTTL is how long a NOT_FOUND place id is remembered
	NegativeTTL time.Duration `yaml:"negativeTTL" default:"5m"`

	// Fallback is answered by Geocode when the provider cannot resolve an address
	Fallback FallbackLocation `yaml:"fallback"`
}

// FallbackLocation is the coordinate geocoding degrades to.
type FallbackLocation struct {
	Lat              float64 `yaml:"lat" default:"40.7128"`
	Lng              float64 `yaml:"lng" default:"-74.006"`
	FormattedAddress string  `yaml:"formattedAddress" default:"New York, NY, USA"`
}

// LatLng returns the fallback coordinate.
func (f FallbackLocation) LatLng() places.LatLng {
	return places.LatLng{Lat: f.Lat, Lng: f.Lng}
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BusinessTTL:        180 * 24 * time.Hour,
		RecommendationsTTL: 24 * time.Hour,
		SearchRadiusMeters: 50000,
		DefaultSearchLimit: 5,
		MaxSearchLimit:     20,
		MaxBatchSize:       20,
		DetailsConcurrency: 20,
		FilterConcurrency:  4,
		NegativeTTL:        5 * time.Minute,
		Fallback: FallbackLocation{
			Lat:              40.7128,
			Lng:              -74.006,
			FormattedAddress: "New York, NY, USA",
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	for _, table := range cache.Tables {
		policy := c.TTLPolicy(table)
		if err := policy.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("lookup: %s ttl must be positive: %w", table, err))
		}
	}
	if c.MaxSearchLimit < 1 {
		errs = append(errs, errors.New("lookup: maxSearchLimit must be at least 1"))
	}
	if c.DefaultSearchLimit < 1 || c.DefaultSearchLimit > c.MaxSearchLimit {
		errs = append(errs, errors.New("lookup: defaultSearchLimit must be within [1, maxSearchLimit]"))
	}
	if c.MaxBatchSize < 1 {
		errs = append(errs, errors.New("lookup: maxBatchSize must be at least 1"))
	}
	if c.Fallback.Lat < -90 || c.Fallback.Lat > 90 || c.Fallback.Lng < -180 || c.Fallback.Lng > 180 {
		errs = append(errs, errors.New("lookup: fallback coordinate out of range"))
	}
	return errors.Join(errs...)
}

// TTLPolicy returns the write policy of a cache table.
func (c Config) TTLPolicy(table cache.Table) cache.TTLPolicy {
	policy := cache.TTLPolicy{Table: table}
	switch table {
	case cache.TableBusiness:
		policy.DefaultTTL = c.BusinessTTL
	case cache.TableRecommendations:
		policy.DefaultTTL = c.RecommendationsTTL
	}
	return policy
}

// ClampLimit applies the search limit rules: nil takes the default, anything
// else is clamped to [1, max].
func (c Config) ClampLimit(limit *int) int {
	if limit == nil {
		return c.DefaultSearchLimit
	}
	switch {
	case *limit < 1:
		return 1
	case *limit > c.MaxSearchLimit:
		return c.MaxSearchLimit
	default:
		return *limit
	}
}
