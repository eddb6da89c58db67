// Package lookup answers place searches and detail requests by cache-or-fetch
// against the places provider.
package lookup

import (
	"context"
	"strings"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/logging"
	"places-cache/pkg/places"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Provider is the subset of the places client the lookups need.
type Provider interface {
	HasCredential() bool
	Autocomplete(ctx context.Context, input string, bias *places.LatLng, radiusMeters int) (*places.AutocompleteResponse, error)
	Details(ctx context.Context, placeID string, fields []string) (*places.Place, error)
	TextSearch(ctx context.Context, query string, radiusMeters int) ([]places.Place, error)
	Geocode(ctx context.Context, address string) (*places.GeocodeResult, error)
}

// Service implements the lookup operations. It holds no request state; all
// sharing between requests goes through the cache store.
type Service struct {
	provider Provider
	store    cache.CacheLayer
	negative *places.NegativeCache
	config   Config
	sf       singleflight.Group
	now      func() time.Time
	logger   *logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger replaces the global logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a lookup service. Zero fields of config take defaults.
func NewService(provider Provider, store cache.CacheLayer, config Config, opts ...Option) *Service {
	config = withDefaults(config)

	s := &Service{
		provider: provider,
		store:    store,
		config:   config,
		now:      time.Now,
		logger:   logging.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("lookup")
	s.negative = places.NewNegativeCache(config.NegativeTTL)

	return s
}

func withDefaults(c Config) Config {
	d := DefaultConfig()
	if c.BusinessTTL <= 0 {
		c.BusinessTTL = d.BusinessTTL
	}
	if c.RecommendationsTTL <= 0 {
		c.RecommendationsTTL = d.RecommendationsTTL
	}
	if c.SearchRadiusMeters <= 0 {
		c.SearchRadiusMeters = d.SearchRadiusMeters
	}
	if c.MaxSearchLimit <= 0 {
		c.MaxSearchLimit = d.MaxSearchLimit
	}
	if c.DefaultSearchLimit <= 0 {
		c.DefaultSearchLimit = min(d.DefaultSearchLimit, c.MaxSearchLimit)
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.DetailsConcurrency <= 0 {
		c.DetailsConcurrency = d.DetailsConcurrency
	}
	if c.FilterConcurrency <= 0 {
		c.FilterConcurrency = d.FilterConcurrency
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = d.NegativeTTL
	}
	if c.Fallback == (FallbackLocation{}) {
		c.Fallback = d.Fallback
	}
	return c
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}

// Close stops background work.
func (s *Service) Close() {
	s.negative.Close()
}

// SearchRequest is the search-places input.
type SearchRequest struct {
	Query string `json:"query"`
	// Limit is clamped to [1, MaxSearchLimit]; nil means DefaultSearchLimit
	Limit *int `json:"limit,omitempty"`
	// Location is an optional "lat,lng" bias
	Location string `json:"location,omitempty"`
}

// Search returns autocomplete predictions for a query, truncated to the
// request limit. Searches are not cached.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*places.AutocompleteResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, invalid("query is required")
	}

	var bias *places.LatLng
	if loc := strings.TrimSpace(req.Location); loc != "" {
		p, err := places.ParseLatLng(loc)
		if err != nil {
			return nil, invalid("%v", err)
		}
		bias = &p
	}

	if !s.provider.HasCredential() {
		return nil, ErrConfig
	}

	limit := s.config.ClampLimit(req.Limit)
	resp, err := s.provider.Autocomplete(ctx, query, bias, s.config.SearchRadiusMeters)
	if err != nil {
		return nil, err
	}

	if len(resp.Predictions) > limit {
		resp.Predictions = resp.Predictions[:limit]
	}
	return resp, nil
}

// Geocode resolves an address. Any provider failure or empty answer degrades
// to the configured fallback coordinate.
func (s *Service) Geocode(ctx context.Context, address string) (*places.GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, invalid("address is required")
	}
	if !s.provider.HasCredential() {
		return nil, ErrConfig
	}

	res, err := s.provider.Geocode(ctx, address)
	if err == nil {
		return res, nil
	}

	s.logger.Warn("geocode failed, using fallback location",
		zap.String("address", address),
		zap.String("status", places.StatusOf(err)),
		zap.Error(err),
	)
	return &places.GeocodeResult{
		Coordinates:      s.config.Fallback.LatLng(),
		FormattedAddress: s.config.Fallback.FormattedAddress,
		Source:           "fallback",
	}, nil
}

// readCache returns the decoded payload of a live row. Store failures and
// undecodable rows are logged and reported as a miss.
func (s *Service) readCache(ctx context.Context, table cache.Table, key string, v any) bool {
	entry, err := s.store.Get(ctx, table, key)
	if err != nil {
		if !cache.IsNotFound(err) {
			s.logger.Warn("cache read failed",
				zap.String("table", table.String()),
				zap.String("key", key),
				zap.String("error_type", cache.ClassifyError(err)),
				zap.Error(err),
			)
		}
		return false
	}

	// Layers filter expired rows already; re-check so a stale row is never served.
	if entry.IsExpired(s.now()) {
		return false
	}

	if err := entry.Decode(v); err != nil {
		s.logger.Warn("cached payload undecodable",
			zap.String("table", table.String()),
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

// writeCache upserts value under the table's TTL policy. Failures are logged only.
func (s *Service) writeCache(ctx context.Context, table cache.Table, key string, value any) {
	policy := s.config.TTLPolicy(table)
	entry, err := cache.NewEntry(key, value, s.now(), policy.EffectiveTTL(0))
	if err == nil {
		err = s.store.Upsert(ctx, table, entry)
	}
	if err != nil {
		s.logger.Warn("cache write failed",
			zap.String("table", table.String()),
			zap.String("key", key),
			zap.String("error_type", cache.ClassifyError(err)),
			zap.Error(err),
		)
	}
}
