// Package placestest provides an in-process fake of the places provider for tests.
package placestest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"places-cache/pkg/places"
)

// APIKey is the credential the fake accepts.
const APIKey = "test-key"

// Operation names as used by Calls, SetStatus and LastQuery.
const (
	OpAutocomplete = "autocomplete"
	OpDetails      = "details"
	OpTextSearch   = "textsearch"
	OpGeocode      = "geocode"
)

// Server is a fake provider backed by httptest.Server.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	places      map[string]places.Place
	predictions []json.RawMessage
	textSearch  map[string][]places.Place
	geocode     map[string]geocodeResult
	statuses    map[string]string
	httpStatus  map[string]int
	calls       map[string]int
	lastQuery   map[string]url.Values
	block       map[string]chan struct{}
}

type geocodeResult struct {
	FormattedAddress string          `json:"formatted_address"`
	Geometry         places.Geometry `json:"geometry"`
}

// New starts a fake provider. Callers must Close it.
func New() *Server {
	s := &Server{
		places:     make(map[string]places.Place),
		textSearch: make(map[string][]places.Place),
		geocode:    make(map[string]geocodeResult),
		statuses:   make(map[string]string),
		httpStatus: make(map[string]int),
		calls:      make(map[string]int),
		lastQuery:  make(map[string]url.Values),
		block:      make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/place/autocomplete/json", s.handle(OpAutocomplete, s.autocomplete))
	mux.HandleFunc("/place/details/json", s.handle(OpDetails, s.details))
	mux.HandleFunc("/place/textsearch/json", s.handle(OpTextSearch, s.search))
	mux.HandleFunc("/geocode/json", s.handle(OpGeocode, s.geocodeAddress))
	s.Server = httptest.NewServer(mux)

	return s
}

// Config returns a client configuration pointing at the fake.
func (s *Server) Config() places.Config {
	return places.Config{APIKey: APIKey, BaseURL: s.URL}
}

// AddPlace registers a place returned by details (and by id only).
func (s *Server) AddPlace(p places.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[p.PlaceID] = p
}

// SetPredictions sets the autocomplete predictions.
func (s *Server) SetPredictions(predictions ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = s.predictions[:0]
	for _, p := range predictions {
		s.predictions = append(s.predictions, json.RawMessage(p))
	}
}

// SetTextSearch sets the results for an exact text-search query.
func (s *Server) SetTextSearch(query string, results ...places.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textSearch[query] = results
}

// SetGeocode sets the answer for an address.
func (s *Server) SetGeocode(address string, loc places.LatLng, formatted string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geocode[address] = geocodeResult{FormattedAddress: formatted, Geometry: places.Geometry{Location: loc}}
}

// SetStatus forces a provider status for every call of op ("" clears it).
func (s *Server) SetStatus(op, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[op] = status
}

// SetHTTPStatus forces a non-2xx HTTP status for op (0 clears it).
func (s *Server) SetHTTPStatus(op string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpStatus[op] = code
}

// Block makes calls of op wait until the returned func is called.
func (s *Server) Block(op string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.block[op] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.block, op)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many requests op received.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of requests across all operations.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// LastQuery returns the query parameters of the latest op request.
func (s *Server) LastQuery(op string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery[op]
}

func (s *Server) handle(op string, fn func(q url.Values) map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		s.mu.Lock()
		s.calls[op]++
		s.lastQuery[op] = q
		status := s.statuses[op]
		code := s.httpStatus[op]
		block := s.block[op]
		s.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}

		if code != 0 {
			w.WriteHeader(code)
			return
		}

		var body map[string]any
		switch {
		case q.Get("key") != APIKey:
			body = map[string]any{"status": places.StatusRequestDenied, "error_message": "The provided API key is invalid."}
		case status != "":
			body = map[string]any{"status": status}
		default:
			body = fn(q)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}

func (s *Server) autocomplete(q url.Values) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.predictions) == 0 {
		return map[string]any{"status": places.StatusZeroResults, "predictions": []any{}}
	}
	return map[string]any{"status": places.StatusOK, "predictions": s.predictions}
}

func (s *Server) details(q url.Values) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := q.Get("place_id")
	if id == "" {
		return map[string]any{"status": places.StatusInvalidRequest}
	}
	p, ok := s.places[id]
	if !ok {
		return map[string]any{"status": places.StatusNotFound}
	}
	return map[string]any{"status": places.StatusOK, "result": p}
}

func (s *Server) search(q url.Values) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, ok := s.textSearch[q.Get("query")]
	if !ok || len(results) == 0 {
		return map[string]any{"status": places.StatusZeroResults, "results": []any{}}
	}
	return map[string]any{"status": places.StatusOK, "results": results}
}

func (s *Server) geocodeAddress(q url.Values) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.geocode[strings.TrimSpace(q.Get("address"))]
	if !ok {
		return map[string]any{"status": places.StatusZeroResults, "results": []any{}}
	}
	return map[string]any{"status": places.StatusOK, "results": []geocodeResult{res}}
}
