// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/terradex/strata/internal/adapters/metrics"
	"github.com/terradex/strata/internal/config"
	"github.com/terradex/strata/internal/ports/input"
	"github.com/terradex/strata/internal/ports/output"
)

// RefreshTrigger runs an API-initiated refresh of one product. It is
// satisfied by the application refresh coordinator.
type RefreshTrigger interface {
	TriggerRefresh(ctx context.Context, product string) (*input.RefreshResult, error)
	Cooldown() time.Duration
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server     *http.Server
	router     *mux.Router
	query      input.SummaryQuery
	health     input.HealthChecker
	refresher  RefreshTrigger
	cache      output.ResponseCache
	cacheTTL   time.Duration
	collector  *metrics.Collector
	logger     *slog.Logger
	config     config.ServerConfig
	metricsCfg config.MetricsConfig
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.ServerConfig,
	metricsCfg config.MetricsConfig,
	query input.SummaryQuery,
	health input.HealthChecker,
	refresher RefreshTrigger,
	cache output.ResponseCache,
	cacheTTL time.Duration,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Server {
	if cache == nil {
		cache = &output.NoOpCache{}
	}

	s := &Server{
		query:      query,
		health:     health,
		refresher:  refresher,
		cache:      cache,
		cacheTTL:   cacheTTL,
		collector:  collector,
		logger:     logger,
		config:     cfg,
		metricsCfg: metricsCfg,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.collector != nil {
		r.Use(s.collector.Middleware)
	}

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	// Prometheus metrics
	if s.metricsCfg.Enabled {
		r.Handle(s.metricsCfg.Path, metrics.Handler()).Methods(http.MethodGet)
	}

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	// Product endpoints
	api.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{product}", s.handleGetProduct).Methods(http.MethodGet)

	// Overview endpoints, all-time down to a single day
	api.HandleFunc("/products/{product}/overview", s.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/products/{product}/overview/{year}", s.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/products/{product}/overview/{year}/{month}", s.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/products/{product}/overview/{year}/{month}/{day}", s.handleOverview).Methods(http.MethodGet)

	// Footprint endpoints (GeoJSON)
	api.HandleFunc("/products/{product}/footprint", s.handleFootprint).Methods(http.MethodGet)
	api.HandleFunc("/products/{product}/footprint/{year}", s.handleFootprint).Methods(http.MethodGet)
	api.HandleFunc("/products/{product}/footprint/{year}/{month}", s.handleFootprint).Methods(http.MethodGet)
	api.HandleFunc("/products/{product}/footprint/{year}/{month}/{day}", s.handleFootprint).Methods(http.MethodGet)

	// Extent export
	api.HandleFunc("/products/{product}/datasets.csv", s.handleDatasetsCSV).Methods(http.MethodGet)

	// Refresh endpoint (only if a refresher is configured)
	if s.refresher != nil {
		api.HandleFunc("/products/{product}/refresh", s.handleRefresh).Methods(http.MethodPost)
	}

	// OpenAPI spec and Swagger UI
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleSwaggerUI).Methods(http.MethodGet)
	r.HandleFunc("/swagger", s.handleSwaggerUI).Methods(http.MethodGet)

	// Frontend for browsing summaries (if enabled)
	if s.config.FrontendEnabled {
		r.HandleFunc("/", s.handleFrontend).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
