package lookup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"places-cache/pkg/cache"
	"places-cache/pkg/places"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FilterRequest is the filter-recommendations input. Filter and Filters are
// merged, in order, without duplicates.
type FilterRequest struct {
	Category string   `json:"category"`
	Filter   string   `json:"filter,omitempty"`
	Filters  []string `json:"filters,omitempty"`
	Location string   `json:"location"`
	Radius   int      `json:"radius,omitempty"`
	UserID   string   `json:"userId,omitempty"`
}

// FilterTags returns the request's ordered, de-duplicated filter set.
func (r FilterRequest) FilterTags() []string {
	var tags []string
	seen := make(map[string]bool)

	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	add(r.Filter)
	for _, f := range r.Filters {
		add(f)
	}
	return tags
}

// ResultKey names one filter's entry in a recommendations result.
func ResultKey(category, filter string) string {
	return category + " - " + filter
}

// FilterRecommendations returns, per filter tag, the businesses of the
// category matching that tag near location. A filter that cannot be answered
// yields an empty list rather than failing the request.
func (s *Service) FilterRecommendations(ctx context.Context, req FilterRequest) (map[string][]places.Business, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, invalid("category is required")
	}
	tags := req.FilterTags()
	if len(tags) == 0 {
		return nil, invalid("at least one filter is required")
	}
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, ErrLocationRequired
	}
	if req.Radius < 0 {
		return nil, invalid("radius must not be negative")
	}
	if !s.provider.HasCredential() {
		return nil, ErrConfig
	}

	var mu sync.Mutex
	result := make(map[string][]places.Business, len(tags))

	var g errgroup.Group
	g.SetLimit(s.config.FilterConcurrency)

	for _, tag := range tags {
		tag := tag
		g.Go(func() error {
			businesses, err := s.recommend(ctx, category, tag, location, req.Radius)
			if err != nil {
				s.logger.Warn("filter recommendation failed",
					zap.String("category", category),
					zap.String("filter", tag),
					zap.String("user_id", req.UserID),
					zap.Error(err),
				)
				businesses = []places.Business{}
			}

			mu.Lock()
			result[ResultKey(category, tag)] = businesses
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return result, nil
}

func (s *Service) recommend(ctx context.Context, category, filter, location string, radius int) ([]places.Business, error) {
	key := cache.FilterKey(category, filter, location, radius)

	var cached []places.Business
	if s.readCache(ctx, cache.TableRecommendations, key, &cached) {
		if cached == nil {
			cached = []places.Business{}
		}
		return cached, nil
	}

	query := fmt.Sprintf("%s %s in %s", filter, category, location)
	results, err := s.provider.TextSearch(ctx, query, radius)
	if err != nil {
		return nil, err
	}

	businesses := make([]places.Business, 0, len(results))
	for _, p := range results {
		businesses = append(businesses, places.NewBusiness(p))
	}

	s.writeCache(ctx, cache.TableRecommendations, key, businesses)
	return businesses, nil
}
