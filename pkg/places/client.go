package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"places-cache/pkg/cache"
	"places-cache/pkg/logging"
	"places-cache/pkg/metrics"
	"places-cache/pkg/resilience"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Google Maps Platform web-service root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api"

// maxResponseBytes bounds how much of a provider response is decoded.
const maxResponseBytes = 4 << 20

// Config holds provider client configuration.
type Config struct {
	// APIKey is the provider credential; an empty key fails every call with ErrNoCredential
	APIKey string `yaml:"apiKey"`
	// BaseURL overrides the provider root (tests point it at an httptest server)
	BaseURL string `yaml:"baseURL" default:"https://maps.googleapis.com/maps/api"`
	// Timeout bounds each provider call
	Timeout time.Duration `yaml:"timeout" default:"10s"`
	// Language is passed through as the provider's language parameter
	Language string `yaml:"language"`
}

// Client calls the places provider's JSON web services through a circuit breaker.
type Client struct {
	config     Config
	http       *http.Client
	breaker    *resilience.Breaker
	resilience resilience.ResilientConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(c *Client) { c.metrics = mc }
}

// WithResilience overrides the breaker and timeout settings.
func WithResilience(rc resilience.ResilientConfig) Option {
	return func(c *Client) { c.resilience = rc }
}

// NewClient creates a provider client.
func NewClient(config Config, opts ...Option) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	c := &Client{
		config:     config,
		http:       &http.Client{},
		resilience: resilience.DefaultProviderConfig(),
		metrics:    metrics.NoOpCollector{},
		logger:     logging.Global().Named("places"),
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := c.resilience.WithTimeout(config.Timeout).WithSuccessClassifier(providerHealthy)
	c.breaker = resilience.NewBreaker("places", rc, c.metrics)

	return c
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	return c.config.APIKey != ""
}

// BreakerState returns the provider circuit breaker state.
func (c *Client) BreakerState() metrics.CircuitState {
	return c.breaker.State()
}

type envelope struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (e *envelope) env() *envelope { return e }

type statusCarrier interface {
	env() *envelope
}

// Autocomplete returns query predictions. When bias is set the provider is asked
// to prefer results within radiusMeters of it.
func (c *Client) Autocomplete(ctx context.Context, input string, bias *LatLng, radiusMeters int) (*AutocompleteResponse, error) {
	params := url.Values{"input": {input}}
	if bias != nil {
		params.Set("location", FormatLatLng(*bias))
		params.Set("radius", strconv.Itoa(radiusMeters))
	}

	var resp struct {
		envelope
		Predictions []json.RawMessage `json:"predictions"`
	}
	if err := c.call(ctx, "autocomplete", "/place/autocomplete/json", params, &resp, StatusOK, StatusZeroResults); err != nil {
		return nil, err
	}

	predictions := resp.Predictions
	if predictions == nil {
		predictions = []json.RawMessage{}
	}
	return &AutocompleteResponse{Status: resp.Status, Predictions: predictions}, nil
}

// Details fetches one place with the given field set.
func (c *Client) Details(ctx context.Context, placeID string, fields []string) (*Place, error) {
	params := url.Values{"place_id": {placeID}}
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}

	var resp struct {
		envelope
		Result Place `json:"result"`
	}
	if err := c.call(ctx, "details", "/place/details/json", params, &resp, StatusOK); err != nil {
		return nil, err
	}

	return &resp.Result, nil
}

// TextSearch runs a free-text place search. radiusMeters is sent when positive.
func (c *Client) TextSearch(ctx context.Context, query string, radiusMeters int) ([]Place, error) {
	params := url.Values{"query": {query}}
	if radiusMeters > 0 {
		params.Set("radius", strconv.Itoa(radiusMeters))
	}

	var resp struct {
		envelope
		Results []Place `json:"results"`
	}
	if err := c.call(ctx, "textsearch", "/place/textsearch/json", params, &resp, StatusOK, StatusZeroResults); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

// Geocode resolves an address to its first matching coordinate.
func (c *Client) Geocode(ctx context.Context, address string) (*GeocodeResult, error) {
	params := url.Values{"address": {address}}

	var resp struct {
		envelope
		Results []struct {
			FormattedAddress string   `json:"formatted_address"`
			Geometry         Geometry `json:"geometry"`
		} `json:"results"`
	}
	if err := c.call(ctx, "geocode", "/geocode/json", params, &resp, StatusOK); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, &StatusError{Operation: "geocode", Status: StatusZeroResults}
	}

	first := resp.Results[0]
	return &GeocodeResult{
		Coordinates:      first.Geometry.Location,
		FormattedAddress: first.FormattedAddress,
		Source:           "provider",
	}, nil
}

// call performs one GET against the provider, decodes into out and checks the
// provider status against okStatuses.
func (c *Client) call(ctx context.Context, op, path string, params url.Values, out statusCarrier, okStatuses ...string) error {
	if !c.HasCredential() {
		return ErrNoCredential
	}

	params.Set("key", c.config.APIKey)
	if c.config.Language != "" {
		params.Set("language", c.config.Language)
	}
	endpoint := c.config.BaseURL + path + "?" + params.Encode()

	start := time.Now()
	status := "NETWORK_ERROR"

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("places: %s: build request: %w", op, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNetwork, op, redact(err))
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			status = "HTTP_" + strconv.Itoa(resp.StatusCode)
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
			return &StatusError{Operation: op, Status: status, HTTPStatus: resp.StatusCode}
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
			status = "INVALID_RESPONSE"
			return fmt.Errorf("%w: %s: decode response: %w", ErrProvider, op, err)
		}

		env := out.env()
		status = env.Status
		for _, ok := range okStatuses {
			if env.Status == ok {
				return nil
			}
		}
		return &StatusError{Operation: op, Status: env.Status, Message: env.ErrorMessage, HTTPStatus: resp.StatusCode}
	})

	if cache.IsCircuitOpen(err) {
		status = "CIRCUIT_OPEN"
		err = fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
	}

	duration := time.Since(start)
	c.metrics.RecordProviderCall(op, status, duration)

	if err != nil {
		c.logger.Warn("provider call failed",
			zap.String("operation", op),
			zap.String("status", status),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("provider call",
		zap.String("operation", op),
		zap.String("status", status),
		zap.Duration("duration", duration),
	)
	return nil
}

// redact drops the request URL from transport errors; it carries the API key.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

// FormatLatLng renders a coordinate as "lat,lng".
func FormatLatLng(p LatLng) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// ParseLatLng parses "lat,lng".
func ParseLatLng(s string) (LatLng, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return LatLng{}, fmt.Errorf("places: location %q is not \"lat,lng\"", s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return LatLng{}, fmt.Errorf("places: invalid latitude in %q", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil || lng < -180 || lng > 180 {
		return LatLng{}, fmt.Errorf("places: invalid longitude in %q", s)
	}

	return LatLng{Lat: lat, Lng: lng}, nil
}
