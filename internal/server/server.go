// Package server exposes the market engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
	"github.com/alanyoungcy/hyperlocal/internal/server/handler"
	"github.com/alanyoungcy/hyperlocal/internal/server/middleware"
	"github.com/alanyoungcy/hyperlocal/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port             int
	CORSOrigins      []string
	RateLimit        int
	RateWindow       time.Duration
	SignatureMaxSkew time.Duration
	TrustedProxies   []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Manifests *handler.ManifestHandler
	Audit     *handler.AuditHandler
	Evidence  *handler.EvidenceHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, request signatures)
// and attaches the WebSocket hub. limiter, replay and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, replay domain.ReplayGuard, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Markets.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{market}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{market}/quote", handlers.Markets.Quote)
	mux.HandleFunc("POST /api/markets/{market}/orders", handlers.Markets.PlaceOrder)

	// Resolution.
	mux.HandleFunc("POST /api/markets/{market}/resolve", handlers.Markets.Resolve)
	mux.HandleFunc("POST /api/markets/{market}/agent-resolution", handlers.Markets.AgentResolution)
	mux.HandleFunc("POST /api/markets/{market}/override", handlers.Markets.Override)

	// Settlement.
	mux.HandleFunc("POST /api/markets/{market}/claim", handlers.Markets.Claim)
	mux.HandleFunc("POST /api/markets/{market}/emergency-withdraw", handlers.Markets.EmergencyWithdraw)
	mux.HandleFunc("GET /api/markets/{market}/positions", handlers.Markets.ListPositions)
	mux.HandleFunc("GET /api/markets/{market}/positions/{trader}", handlers.Markets.GetPosition)
	mux.HandleFunc("GET /api/accounts/{account}", handlers.Markets.GetAccount)
	if handlers.Evidence != nil {
		mux.HandleFunc("GET /api/markets/{market}/evidence", handlers.Evidence.List)
	}

	mux.HandleFunc("POST /api/manifests", handlers.Manifests.Upload)
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Signature(cfg.SignatureMaxSkew, replay, time.Now)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, middleware.ParseTrustedProxies(cfg.TrustedProxies))(h)
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
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
