// Package server assembles the HTTP API: routing, middleware, and lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
	"github.com/skybread8/tradesyncer/internal/server/handler"
	"github.com/skybread8/tradesyncer/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// Per-client request budget. Zero disables rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Auth     *handler.AuthHandler
	Accounts *handler.AccountHandler
	Copiers  *handler.CopierHandler
	Trades   *handler.TradeHandler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Health and the auth
// endpoints are public; everything else sits behind session authentication.
func NewServer(cfg Config, handlers Handlers, sessions domain.SessionStore, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	// Authenticated routes.
	api := http.NewServeMux()

	api.HandleFunc("POST /api/auth/logout", handlers.Auth.Logout)

	api.HandleFunc("GET /api/accounts", handlers.Accounts.List)
	api.HandleFunc("POST /api/accounts", handlers.Accounts.Create)
	api.HandleFunc("POST /api/accounts/platforms/connect", handlers.Accounts.ConnectPlatform)
	api.HandleFunc("POST /api/accounts/platforms/create-accounts", handlers.Accounts.CreateFromPlatform)
	api.HandleFunc("POST /api/accounts/test-connection", handlers.Accounts.TestConnection)
	api.HandleFunc("GET /api/accounts/{id}", handlers.Accounts.Get)
	api.HandleFunc("PUT /api/accounts/{id}", handlers.Accounts.Update)
	api.HandleFunc("DELETE /api/accounts/{id}", handlers.Accounts.Delete)
	api.HandleFunc("POST /api/accounts/{id}/connect", handlers.Accounts.Connect)
	api.HandleFunc("POST /api/accounts/{id}/disconnect", handlers.Accounts.Disconnect)
	api.HandleFunc("GET /api/accounts/{id}/trades", handlers.Trades.ListByAccount)

	api.HandleFunc("GET /api/copiers", handlers.Copiers.List)
	api.HandleFunc("POST /api/copiers", handlers.Copiers.Create)
	api.HandleFunc("GET /api/copiers/{id}", handlers.Copiers.Get)
	api.HandleFunc("PUT /api/copiers/{id}", handlers.Copiers.Update)
	api.HandleFunc("DELETE /api/copiers/{id}", handlers.Copiers.Delete)
	api.HandleFunc("POST /api/copiers/{id}/start", handlers.Copiers.Start)
	api.HandleFunc("POST /api/copiers/{id}/stop", handlers.Copiers.Stop)
	api.HandleFunc("POST /api/copiers/{id}/pause", handlers.Copiers.Pause)
	api.HandleFunc("GET /api/copiers/{id}/slaves", handlers.Copiers.ListSlaves)
	api.HandleFunc("POST /api/copiers/{id}/slaves", handlers.Copiers.AddSlave)
	api.HandleFunc("PUT /api/copiers/{id}/slaves/{accountId}", handlers.Copiers.UpdateSlave)
	api.HandleFunc("DELETE /api/copiers/{id}/slaves/{accountId}", handlers.Copiers.RemoveSlave)
	api.HandleFunc("GET /api/copiers/{id}/trades", handlers.Copiers.ListTrades)
	api.HandleFunc("GET /api/copiers/{id}/mappings", handlers.Copiers.ListMappings)
	api.HandleFunc("GET /api/copiers/{id}/logs", handlers.Copiers.ListLogs)

	api.HandleFunc("GET /api/trades/history", handlers.Trades.History)

	// Public routes on the outer mux; the rest of /api/ goes through auth.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("POST /api/auth/register", handlers.Auth.Register)
	mux.HandleFunc("POST /api/auth/login", handlers.Auth.Login)
	mux.Handle("/api/", middleware.Auth(sessions)(api))

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
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
