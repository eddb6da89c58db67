package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"places-cache/pkg/logging"
	"places-cache/pkg/lookup"
	"places-cache/pkg/places"

	"go.uber.org/zap"
)

var (
	// ErrLocationRequired is reported when filtering is attempted without a location
	ErrLocationRequired = lookup.ErrLocationRequired

	// ErrNetwork is reported when the filter endpoint cannot be reached
	ErrNetwork = errors.New("filter: network error")

	// ErrRequest is reported when the filter endpoint answers with an error
	ErrRequest = errors.New("filter: request failed")
)

// User-facing notices.
const (
	NoticeLocationRequired = "Please set your location to see filtered results."
	NoticeNetwork          = "Couldn't reach the server. Check your connection and try again."
	NoticeFailed           = "Couldn't load filtered results. Please try again."
)

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8080
	BaseURL string
	// DisplayLimit is how many businesses a result shows (default 5)
	DisplayLimit int
	// Timeout bounds each request (default 15s)
	Timeout time.Duration
}

// Result is a filtered business list for one category.
type Result struct {
	Businesses []places.Business `json:"businesses"`
	Total      int               `json:"total"`
	Additional int               `json:"additional"`
}

// Snapshot is the observable state of one category.
type Snapshot struct {
	Category string   `json:"category"`
	Filters  []string `json:"filters"`
	Loading  bool     `json:"loading"`
	Result   *Result  `json:"result,omitempty"`
	Notice   string   `json:"notice,omitempty"`
	// Err is the error behind Notice
	Err error `json:"-"`
}

type categoryState struct {
	filters    []string
	loading    bool
	result     *Result
	notice     string
	err        error
	generation uint64
}

// Client drives category filtering against the filter endpoint. Categories
// are tracked independently and are safe to toggle concurrently.
type Client struct {
	endpoint     string
	http         *http.Client
	displayLimit int
	logger       *logging.Logger

	mu     sync.Mutex
	states map[string]*categoryState
}

// NewClient creates a filter client.
func NewClient(config Config, hc *http.Client) *Client {
	if config.DisplayLimit <= 0 {
		config.DisplayLimit = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		endpoint:     strings.TrimRight(config.BaseURL, "/") + "/filter-recommendations",
		http:         hc,
		displayLimit: config.DisplayLimit,
		logger:       logging.Global().Named("filter"),
		states:       make(map[string]*categoryState),
	}
}

// Toggle adds tag to the category's filters, or removes it if already active,
// then refreshes the category's result. Removing the last tag clears the
// result without a request; a missing location sets a notice without one.
func (c *Client) Toggle(ctx context.Context, category, tag, location string) Snapshot {
	c.mu.Lock()
	st := c.stateLocked(category)
	st.filters = toggle(st.filters, tag)
	st.generation++
	gen := st.generation

	if len(st.filters) == 0 {
		st.loading = false
		st.result = nil
		st.notice = ""
		st.err = nil
		snap := st.snapshot(category)
		c.mu.Unlock()
		return snap
	}

	if strings.TrimSpace(location) == "" {
		st.loading = false
		st.result = &Result{Businesses: []places.Business{}}
		st.notice = NoticeLocationRequired
		st.err = ErrLocationRequired
		snap := st.snapshot(category)
		c.mu.Unlock()
		return snap
	}

	st.loading = true
	filters := append([]string(nil), st.filters...)
	c.mu.Unlock()

	resp, err := c.fetch(ctx, lookup.FilterRequest{Category: category, Filters: filters, Location: location})

	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer toggle for this category owns the state now.
	if st.generation != gen {
		return st.snapshot(category)
	}

	st.loading = false
	if err != nil {
		c.logger.Warn("filter request failed",
			zap.String("category", category),
			zap.Strings("filters", filters),
			zap.Error(err),
		)
		st.result = &Result{Businesses: []places.Business{}}
		st.notice = noticeFor(err)
		st.err = err
		return st.snapshot(category)
	}

	st.result = c.buildResult(category, filters, resp)
	st.notice = ""
	st.err = nil
	return st.snapshot(category)
}

// Clear drops a category's filters and result.
func (c *Client) Clear(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.states[category]; ok {
		st.generation++
		st.filters = nil
		st.loading = false
		st.result = nil
		st.notice = ""
		st.err = nil
	}
}

// Snapshot returns the current state of a category.
func (c *Client) Snapshot(category string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[category]
	if !ok {
		return Snapshot{Category: category}
	}
	return st.snapshot(category)
}

func (c *Client) stateLocked(category string) *categoryState {
	st, ok := c.states[category]
	if !ok {
		st = &categoryState{}
		c.states[category] = st
	}
	return st
}

func (st *categoryState) snapshot(category string) Snapshot {
	snap := Snapshot{
		Category: category,
		Filters:  append([]string(nil), st.filters...),
		Loading:  st.loading,
		Notice:   st.notice,
		Err:      st.err,
	}
	if st.result != nil {
		r := *st.result
		r.Businesses = append([]places.Business{}, st.result.Businesses...)
		snap.Result = &r
	}
	return snap
}

func toggle(filters []string, tag string) []string {
	for i, f := range filters {
		if f == tag {
			return append(filters[:i:i], filters[i+1:]...)
		}
	}
	return append(filters, tag)
}

// buildResult merges the per-filter lists in filter order, dropping repeated
// places, and cuts the list at the display limit.
func (c *Client) buildResult(category string, filters []string, resp map[string][]places.Business) *Result {
	var all []places.Business
	seen := make(map[string]bool)

	for _, f := range filters {
		for _, b := range resp[lookup.ResultKey(category, f)] {
			if b.PlaceID != "" {
				if seen[b.PlaceID] {
					continue
				}
				seen[b.PlaceID] = true
			}
			all = append(all, b)
		}
	}

	shown := all
	if len(shown) > c.displayLimit {
		shown = shown[:c.displayLimit]
	}
	if shown == nil {
		shown = []places.Business{}
	}

	return &Result{
		Businesses: shown,
		Total:      len(all),
		Additional: len(all) - len(shown),
	}
}

func (c *Client) fetch(ctx context.Context, req lookup.FilterRequest) (map[string][]places.Business, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("filter: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("filter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%w: %d: %s", ErrRequest, resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("%w: status %d", ErrRequest, resp.StatusCode)
	}

	var out map[string][]places.Business
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrRequest, err)
	}
	return out, nil
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, ErrLocationRequired):
		return NoticeLocationRequired
	case errors.Is(err, ErrNetwork):
		return NoticeNetwork
	default:
		return NoticeFailed
	}
}
