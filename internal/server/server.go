package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openwager/betpool/internal/domain"
	"github.com/openwager/betpool/internal/server/handler"
	"github.com/openwager/betpool/internal/server/middleware"
	"github.com/openwager/betpool/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimitPerMinute caps requests per client IP per minute. Zero
	// disables rate limiting; a nil limiter does too.
	RateLimitPerMinute int
	Limiter            domain.RateLimiter
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Bets       *handler.BetHandler
	Positions  *handler.PositionHandler
	Settlement *handler.SettlementHandler
	Balances   *handler.BalanceHandler
	Archive    *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API for the bet pool ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Bet lifecycle and discovery.
	mux.HandleFunc("POST /api/bets", handlers.Bets.CreateBet)
	mux.HandleFunc("GET /api/bets", handlers.Bets.ListBets)
	mux.HandleFunc("GET /api/bets/{id}", handlers.Bets.GetBet)
	mux.HandleFunc("GET /api/bets/{id}/stats", handlers.Bets.GetStats)

	// Positions.
	mux.HandleFunc("POST /api/bets/{id}/positions", handlers.Positions.TakePosition)
	mux.HandleFunc("GET /api/bets/{id}/positions/{addr}", handlers.Positions.GetPosition)

	// Settlement.
	mux.HandleFunc("POST /api/bets/{id}/resolve", handlers.Settlement.Resolve)
	mux.HandleFunc("POST /api/bets/{id}/claim", handlers.Settlement.Claim)
	mux.HandleFunc("POST /api/bets/{id}/refund", handlers.Settlement.Refund)

	// Custodial balances.
	mux.HandleFunc("GET /api/balances/{addr}", handlers.Balances.GetBalance)
	mux.HandleFunc("POST /api/balances/{addr}/deposit", handlers.Balances.Deposit)

	// Archival trigger.
	if handlers.Archive != nil {
		mux.HandleFunc("POST /api/archive/trigger", handlers.Archive.TriggerArchive)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if cfg.Limiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimitPerMinute, time.Minute)(h)
	}

	// Auth (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

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
