// Package server exposes the read API and WebSocket feed over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbmon/internal/domain"
	"github.com/alanyoungcy/arbmon/internal/server/handler"
	"github.com/alanyoungcy/arbmon/internal/server/middleware"
	"github.com/alanyoungcy/arbmon/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Limiter, when non-nil, enables per-client request rate limiting.
	Limiter        domain.RateLimiter
	RequestsPerMin int // default 120
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Listings      *handler.ListingHandler
	Pairs         *handler.PairHandler
	Similarity    *handler.SimilarityHandler
	Opportunities *handler.OpportunityHandler
	Cycles        *handler.CycleHandler

	// Archives is nil when archival is disabled; its routes are then not
	// registered.
	Archives *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API for the monitor.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (auth, logging, CORS) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required once auth middleware allows it through;
	// with an API key configured the health endpoint is also protected).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Listing endpoints.
	mux.HandleFunc("GET /api/listings/{platform}", handlers.Listings.List)
	mux.HandleFunc("GET /api/listings/{platform}/{id}", handlers.Listings.Get)

	// Pair management endpoints.
	mux.HandleFunc("GET /api/pairs", handlers.Pairs.List)
	mux.HandleFunc("POST /api/pairs", handlers.Pairs.Create)
	mux.HandleFunc("DELETE /api/pairs", handlers.Pairs.Delete)
	mux.HandleFunc("POST /api/pairs/exclude", handlers.Pairs.Exclude)

	// Similarity endpoints.
	mux.HandleFunc("GET /api/similarity/matches", handlers.Similarity.ListMatches)
	mux.HandleFunc("GET /api/similarity/considered", handlers.Similarity.ListConsidered)
	mux.HandleFunc("GET /api/similarity/pair", handlers.Similarity.ListByPair)

	// Opportunity endpoints.
	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListRecent)
	mux.HandleFunc("GET /api/opportunities/summary", handlers.Opportunities.Summary)
	mux.HandleFunc("GET /api/opportunities/pair", handlers.Opportunities.ListByPair)
	mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunities.Get)

	// Cycle endpoints.
	mux.HandleFunc("GET /api/cycles", handlers.Cycles.ListRecent)
	mux.HandleFunc("POST /api/cycles/trigger", handlers.Cycles.Trigger)

	// Archive browse endpoints, only when cold storage is configured.
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.List)
		mux.HandleFunc("GET /api/archives/object", handlers.Archives.Download)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.Limiter != nil {
		perMin := cfg.RequestsPerMin
		if perMin <= 0 {
			perMin = 120
		}
		h = middleware.RateLimit(cfg.Limiter, perMin, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
