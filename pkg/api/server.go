// Package api exposes the lookup functions and cleanup jobs as JSON HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"places-cache/pkg/cleanup"
	"places-cache/pkg/logging"
	"places-cache/pkg/lookup"
	"places-cache/pkg/metrics"
	"places-cache/pkg/metrics/memory"
	"places-cache/pkg/writer"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves the places endpoints.
type Server struct {
	lookup      *lookup.Service
	sweeper     *cleanup.Sweeper
	store       interface{ Name() string }
	metrics     metrics.MetricsCollector
	gatherer    prometheus.Gatherer
	httpMetrics *HTTPMetrics
	router      *mux.Router
	server      *http.Server
	config      ServerConfig
	logger      *logging.Logger
	started     time.Time
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string `yaml:"address" default:":8080"`

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration `yaml:"readTimeout" default:"10s"`

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration `yaml:"writeTimeout" default:"60s"`

	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration `yaml:"idleTimeout" default:"120s"`

	// RequestTimeout bounds the handling of one lookup request
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"30s"`

	// MaxBodyBytes caps request bodies
	MaxBodyBytes int64 `yaml:"maxBodyBytes" default:"1048576"`
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
}

// Option customizes a Server.
type Option func(*Server)

// WithSweeper enables the cleanup routes.
func WithSweeper(sw *cleanup.Sweeper) Option {
	return func(s *Server) { s.sweeper = sw }
}

// WithStore names the cache store in /status; writer stats are reported when
// the store exposes them.
func WithStore(store interface{ Name() string }) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics sets the collector whose snapshot /metrics/json reports.
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(s *Server) { s.metrics = mc }
}

// WithRegistry serves /metrics from reg and registers the HTTP metrics there.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.gatherer = reg
		s.httpMetrics = NewHTTPMetrics(reg)
	}
}

// NewServer creates the API server.
func NewServer(svc *lookup.Service, config ServerConfig, opts ...Option) *Server {
	s := &Server{
		lookup:   svc,
		metrics:  metrics.NoOpCollector{},
		gatherer: prometheus.DefaultGatherer,
		config:   config,
		logger:   logging.Global().Named("api"),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpMetrics == nil {
		s.httpMetrics = NewHTTPMetrics(nil)
	}

	r := mux.NewRouter()

	// Lookup functions
	r.HandleFunc("/search-places", s.handleSearch).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/place-details", s.handlePlaceDetails).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/business-details", s.handleBusinessDetails).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/geocode", s.handleGeocode).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/filter-recommendations", s.handleFilterRecommendations).Methods(http.MethodPost, http.MethodOptions)

	// Cleanup jobs
	r.HandleFunc("/cleanup/sweep", s.handleSweep).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/cleanup/force-clear", s.handleForceClear).Methods(http.MethodPost, http.MethodOptions)

	// Health and metrics
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet, http.MethodOptions)

	r.Use(requestIDMiddleware, s.observe, mux.CORSMethodMiddleware(r), corsMiddleware)
	r.NotFoundHandler = corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}))
	r.MethodNotAllowedHandler = corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}))

	s.router = r
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine. Listen failures are sent on the
// returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", zap.Error(err))
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Stop gracefully shuts down the HTTP server and waits for detached sweeps.
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.sweeper != nil {
		if werr := s.sweeper.Wait(ctx); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.config.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := r.Body
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadJSON
	}
	return nil
}

// fail writes err with status, logging server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request error",
			zap.String("route", routeName(r)),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeError(w, status, err)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req lookup.SearchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, StatusFor(err), err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	resp, err := s.lookup.Search(ctx, req)
	if err != nil {
		s.fail(w, r, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchResponse struct {
	Results []any `json:"results"`
}

func (s *Server) handlePlaceDetails(w http.ResponseWriter, r *http.Request) {
	var req lookup.DetailsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, StatusFor(err), err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if !req.IsBatch() {
		rec, err := s.lookup.PlaceDetails(ctx, req.PlaceID)
		if err != nil {
			s.fail(w, r, StatusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	recs, err := s.lookup.BatchDetails(ctx, req.PlaceIDs)
	if err != nil {
		s.fail(w, r, StatusFor(err), err)
		return
	}

	// Failed slots encode as null.
	results := make([]any, len(recs))
	for i, rec := range recs {
		if rec != nil {
			results[i] = rec
		}
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// handleBusinessDetails reports every failure, bad input included, as 500.
func (s *Server) handleBusinessDetails(w http.ResponseWriter, r *http.Request) {
	var req lookup.BusinessDetailsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	details, err := s.lookup.BusinessDetails(ctx, req)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type geocodeRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	var req geocodeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, StatusFor(err), err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := s.lookup.Geocode(ctx, req.Address)
	if err != nil {
		s.fail(w, r, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFilterRecommendations(w http.ResponseWriter, r *http.Request) {
	var req lookup.FilterRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, StatusFor(err), err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	result, err := s.lookup.FilterRecommendations(ctx, req)
	if err != nil {
		s.fail(w, r, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		s.fail(w, r, http.StatusInternalServerError, errCleanupUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.sweeper.Trigger())
}

func (s *Server) handleForceClear(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		s.fail(w, r, http.StatusInternalServerError, errCleanupUnavailable)
		return
	}

	result, err := s.sweeper.ForceClear(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleHealth returns a simple health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleStatus returns detailed status information.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "running",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).String(),
	}
	if s.store != nil {
		response["cache"] = s.store.Name()
		if ws, ok := s.store.(interface{ WriterStats() writer.AsyncWriterStats }); ok {
			response["writers"] = ws.WriterStats()
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleMetricsJSON returns the collector snapshot when it has one.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if mc, ok := s.metrics.(*memory.MemoryCollector); ok {
		writeJSON(w, http.StatusOK, mc.Snapshot())
		return
	}

	writeError(w, http.StatusNotImplemented, errors.New("metrics collector does not support JSON snapshot"))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
