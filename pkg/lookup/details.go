package lookup

import (
	"context"
	"fmt"
	"strings"

	"places-cache/pkg/cache"
	"places-cache/pkg/places"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DetailsRequest is the place-details input: either one id or a batch.
// PlaceIDs wins when both are set.
type DetailsRequest struct {
	PlaceID  string   `json:"place_id,omitempty"`
	PlaceIDs []string `json:"place_ids,omitempty"`
}

// IsBatch reports whether the request uses the batch form.
func (r DetailsRequest) IsBatch() bool {
	return r.PlaceIDs != nil
}

// PlaceDetails fetches one place. Unlike a batch slot, a failure here is
// returned to the caller.
func (s *Service) PlaceDetails(ctx context.Context, placeID string) (*places.PlaceRecord, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, invalid("place_id or place_ids is required")
	}
	if !s.provider.HasCredential() {
		return nil, ErrConfig
	}

	return s.fetchRecord(ctx, placeID)
}

// BatchDetails fetches up to MaxBatchSize places concurrently. The result is
// aligned with placeIDs; a slot whose lookup failed is nil. Repeated ids are
// fetched once per occurrence.
func (s *Service) BatchDetails(ctx context.Context, placeIDs []string) ([]*places.PlaceRecord, error) {
	if len(placeIDs) == 0 {
		return nil, invalid("place_id or place_ids is required")
	}
	if len(placeIDs) > s.config.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d ids, maximum is %d", ErrTooManyRequested, len(placeIDs), s.config.MaxBatchSize)
	}
	if !s.provider.HasCredential() {
		return nil, ErrConfig
	}

	results := make([]*places.PlaceRecord, len(placeIDs))

	// A plain Group: one failed id must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(s.config.DetailsConcurrency)

	for i, id := range placeIDs {
		i, id := i, id
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		g.Go(func() error {
			rec, err := s.fetchRecord(ctx, id)
			if err != nil {
				s.logger.Debug("batch slot failed",
					zap.Int("index", i),
					zap.String("place_id", id),
					zap.Error(err),
				)
				return nil
			}
			results[i] = rec
			return nil
		})
	}
	g.Wait()

	return results, nil
}

func (s *Service) fetchRecord(ctx context.Context, placeID string) (*places.PlaceRecord, error) {
	if s.negative.Contains(placeID) {
		return nil, &places.StatusError{Operation: "details", Status: places.StatusNotFound, Message: "recently reported missing"}
	}

	place, err := s.provider.Details(ctx, placeID, places.DetailFields)
	if err != nil {
		if places.IsNotFound(err) {
			s.negative.Add(placeID)
		}
		return nil, err
	}

	rec := places.NewPlaceRecord(*place)
	if rec.PlaceID == "" {
		rec.PlaceID = placeID
	}
	return &rec, nil
}

// BusinessDetailsRequest is the cached business-details input.
type BusinessDetailsRequest struct {
	PlaceID      string `json:"place_id"`
	BusinessName string `json:"business_name"`
}

// BusinessDetails returns the business-detail record for a place, served from
// the business table while live and fetched from the provider otherwise.
// Concurrent misses for one place share a single provider call.
func (s *Service) BusinessDetails(ctx context.Context, req BusinessDetailsRequest) (*places.BusinessDetails, error) {
	placeID := strings.TrimSpace(req.PlaceID)
	if placeID == "" {
		return nil, invalid("place_id is required")
	}
	if !s.provider.HasCredential() {
		return nil, ErrConfig
	}

	key := cache.DetailsKey(placeID)

	var cached places.BusinessDetails
	if s.readCache(ctx, cache.TableBusiness, key, &cached) {
		s.logger.Debug("business details served from cache",
			zap.String("place_id", placeID),
			zap.String("business_name", req.BusinessName),
		)
		return &cached, nil
	}

	// The flight outlives any one caller: joiners must not inherit the
	// first caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchBusiness(flightCtx, placeID, key)
	})
	if err != nil {
		return nil, err
	}

	details := v.(places.BusinessDetails)
	s.logger.Debug("business details fetched",
		zap.String("place_id", placeID),
		zap.String("business_name", req.BusinessName),
		zap.Bool("shared", shared),
	)
	return &details, nil
}

func (s *Service) fetchBusiness(ctx context.Context, placeID, key string) (places.BusinessDetails, error) {
	place, err := s.provider.Details(ctx, placeID, places.BusinessFields)
	if err != nil {
		return places.BusinessDetails{}, fmt.Errorf("business details for %s: %w", placeID, err)
	}

	details := places.NewBusinessDetails(*place, s.now())
	s.writeCache(ctx, cache.TableBusiness, key, details)

	return details, nil
}
