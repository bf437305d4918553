// Package api provides the operations HTTP server: health, metrics, realm
// and session listings.
//
//nolint:revive // "api" is a clear and appropriate package name
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fzdarsky/realmgate/internal/api/handlers"
	"github.com/fzdarsky/realmgate/internal/api/middleware"
	"github.com/fzdarsky/realmgate/internal/logging"
	"github.com/fzdarsky/realmgate/internal/metrics"
)

// Config configures the operations server.
type Config struct {
	// Address is the host:port to listen on.
	Address string

	// Token, when set, is required as a bearer token on /realms and /sessions.
	Token string

	// TLS, when set, serves HTTPS.
	TLS *tls.Config
}

// Dependencies are the data sources behind the endpoints.
type Dependencies struct {
	Store    handlers.HealthChecker
	Realms   handlers.RealmLister
	Sessions handlers.SessionLister
	Metrics  *metrics.Metrics
}

// Server represents the operations HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
}

// New creates the server and registers its routes.
func New(cfg Config, deps Dependencies, logger *logging.Logger) *Server {
	mux := http.NewServeMux()
	protect := middleware.BearerToken(cfg.Token)

	mux.Handle("GET /healthz", handlers.NewHealthHandler(deps.Store))
	mux.Handle("GET /metrics", deps.Metrics.Handler())
	mux.Handle("GET /realms", protect(handlers.NewRealmsHandler(deps.Realms, logger)))
	mux.Handle("GET /sessions", protect(handlers.NewSessionsHandler(deps.Sessions)))

	var handler http.Handler = mux
	handler = middleware.Logging(logger, "/healthz", "/metrics")(handler)
	handler = middleware.ErrorHandler(logger)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			TLSConfig:         cfg.TLS,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("starting operations server", map[string]any{
		"address": listener.Addr().String(),
		"tls":     s.httpServer.TLSConfig != nil,
	})

	if s.httpServer.TLSConfig != nil {
		listener = tls.NewListener(listener, s.httpServer.TLSConfig)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("operations server shutdown complete")
	return nil
}
