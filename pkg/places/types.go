package places

import (
	"encoding/json"
	"time"
)

// LatLng is a geographic coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geometry wraps a place's location.
type Geometry struct {
	Location LatLng `json:"location"`
}

// OpeningHours is the provider's opening-hours block.
type OpeningHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

// Place is a provider place result as returned by details and text search.
type Place struct {
	PlaceID              string        `json:"place_id"`
	Name                 string        `json:"name"`
	FormattedAddress     string        `json:"formatted_address"`
	Vicinity             string        `json:"vicinity,omitempty"`
	Rating               float64       `json:"rating,omitempty"`
	UserRatingsTotal     int           `json:"user_ratings_total,omitempty"`
	PriceLevel           *int          `json:"price_level,omitempty"`
	FormattedPhoneNumber string        `json:"formatted_phone_number,omitempty"`
	Website              string        `json:"website,omitempty"`
	OpeningHours         *OpeningHours `json:"opening_hours,omitempty"`
	BusinessStatus       string        `json:"business_status,omitempty"`
	Types                []string      `json:"types,omitempty"`
	Geometry             *Geometry     `json:"geometry,omitempty"`
}

// WeekdayText returns the ordered per-weekday opening hours, or nil.
func (p *Place) WeekdayText() []string {
	if p.OpeningHours == nil {
		return nil
	}
	return p.OpeningHours.WeekdayText
}

// PlaceRecord is the normalized place returned by place-details lookups.
type PlaceRecord struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Rating           float64  `json:"rating,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Website          string   `json:"website,omitempty"`
	OpeningHours     []string `json:"opening_hours,omitempty"`
	BusinessStatus   string   `json:"business_status,omitempty"`
	Types            []string `json:"types,omitempty"`
	Geometry         *LatLng  `json:"geometry,omitempty"`
}

// NewPlaceRecord normalizes a provider place.
func NewPlaceRecord(p Place) PlaceRecord {
	r := PlaceRecord{
		PlaceID:          p.PlaceID,
		Name:             p.Name,
		FormattedAddress: p.FormattedAddress,
		Rating:           p.Rating,
		Phone:            p.FormattedPhoneNumber,
		Website:          p.Website,
		OpeningHours:     p.WeekdayText(),
		BusinessStatus:   p.BusinessStatus,
		Types:            p.Types,
	}
	if p.Geometry != nil {
		loc := p.Geometry.Location
		r.Geometry = &loc
	}
	return r
}

// BusinessDetails is the cached business-detail payload.
type BusinessDetails struct {
	Website        string    `json:"website"`
	Phone          string    `json:"phone"`
	OpeningHours   []string  `json:"opening_hours"`
	BusinessStatus string    `json:"business_status"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// NewBusinessDetails maps a provider place onto the business-detail shape.
func NewBusinessDetails(p Place, fetchedAt time.Time) BusinessDetails {
	hours := p.WeekdayText()
	if hours == nil {
		hours = []string{}
	}
	return BusinessDetails{
		Website:        p.Website,
		Phone:          p.FormattedPhoneNumber,
		OpeningHours:   hours,
		BusinessStatus: p.BusinessStatus,
		FetchedAt:      fetchedAt.UTC(),
	}
}

// Business is one entry of a filter-recommendations result.
type Business struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Rating           float64  `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
	PriceLevel       *int     `json:"price_level,omitempty"`
	BusinessStatus   string   `json:"business_status,omitempty"`
	Types            []string `json:"types,omitempty"`
	Geometry         *LatLng  `json:"geometry,omitempty"`
}

// NewBusiness normalizes a text-search result.
func NewBusiness(p Place) Business {
	addr := p.FormattedAddress
	if addr == "" {
		addr = p.Vicinity
	}
	b := Business{
		PlaceID:          p.PlaceID,
		Name:             p.Name,
		Address:          addr,
		Rating:           p.Rating,
		UserRatingsTotal: p.UserRatingsTotal,
		PriceLevel:       p.PriceLevel,
		BusinessStatus:   p.BusinessStatus,
		Types:            p.Types,
	}
	if p.Geometry != nil {
		loc := p.Geometry.Location
		b.Geometry = &loc
	}
	return b
}

// AutocompleteResponse is the provider autocomplete payload. Predictions are
// kept as raw JSON so they are returned to callers verbatim.
type AutocompleteResponse struct {
	Status       string            `json:"status"`
	Predictions  []json.RawMessage `json:"predictions"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// GeocodeResult is the geocode endpoint's answer.
type GeocodeResult struct {
	Coordinates      LatLng `json:"coordinates"`
	FormattedAddress string `json:"formatted_address"`
	// Source is "provider" or "fallback"
	Source string `json:"source,omitempty"`
}

// Provider statuses.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusNotFound       = "NOT_FOUND"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusUnknownError   = "UNKNOWN_ERROR"
)

// DetailFields is the field set requested by place-details lookups.
var DetailFields = []string{
	"place_id", "name", "formatted_address", "rating", "formatted_phone_number",
	"website", "opening_hours", "types", "geometry", "business_status",
}

// BusinessFields is the narrower field set requested for cached business details.
var BusinessFields = []string{
	"website", "formatted_phone_number", "opening_hours", "business_status",
}
