// Package api exposes the service over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/accesstime/internal/auth"
	"github.com/goodtune/accesstime/internal/service"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr      string
	RateLimit       int // zero disables rate limiting
	RateLimitWindow time.Duration
}

// Server represents the API HTTP server.
type Server struct {
	config      Config
	svc         *service.Service
	auth        *auth.Service
	rateLimiter *RateLimiter
	server      *http.Server
	router      *mux.Router
	listener    net.Listener // Optional pre-created listener (for systemd socket activation)
	logger      zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, svc *service.Service, authService *auth.Service, logger zerolog.Logger) *Server {
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = time.Minute
	}

	s := &Server{
		config: cfg,
		svc:    svc,
		auth:   authService,
		router: mux.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
	}
	if cfg.RateLimit > 0 {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))
	if s.rateLimiter != nil {
		s.router.Use(RateLimitMiddleware(s.rateLimiter))
	}

	authed := AuthMiddleware(s.auth)
	mutate := func(path string, h http.HandlerFunc, method string) {
		s.router.Handle(path, authed(h)).Methods(method)
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	mutate("/api/init", s.handleInit, "POST")
	s.router.HandleFunc("/api/settings", s.handleSettings).Methods("GET")

	// Catalog
	s.router.HandleFunc("/api/packages", s.handleListPackages).Methods("GET")
	s.router.HandleFunc("/api/packages/{id}", s.handleGetPackage).Methods("GET")
	mutate("/api/packages/{id}", s.handleSetPackage, "PUT")

	// Orders
	s.router.HandleFunc("/api/owners/{owner}/orders", s.handleListOrders).Methods("GET")
	mutate("/api/owners/{owner}/orders", s.handlePurchase, "POST")
	s.router.HandleFunc("/api/owners/{owner}/orders/{order}", s.handleGetOrder).Methods("GET")
	mutate("/api/owners/{owner}/orders/{order}/grant", s.handleGrant, "POST")

	// Sessions
	s.router.HandleFunc("/api/owners/{owner}/session", s.handleGetSession).Methods("GET")
	mutate("/api/owners/{owner}/session/start", s.handleStart, "POST")
	mutate("/api/owners/{owner}/session/pause", s.handlePause, "POST")
	s.router.HandleFunc("/api/owners/{owner}/access", s.handleAccess).Methods("GET")
	s.router.HandleFunc("/api/owners/{owner}/remaining", s.handleRemaining).Methods("GET")
	s.router.HandleFunc("/api/owners/{owner}/active", s.handleActive).Methods("GET")
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}
