package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/vigil/internal/app"
)

// Server owns the HTTP listener and its route table.
type Server struct {
	app        *app.App
	httpServer *http.Server
}

// New builds the server around the app's handlers. Read/write timeouts are
// generous because batch ingest payloads can be large; idle keeps agent
// connections warm between heartbeats.
func New(application *app.App) *Server {
	s := &Server{app: application}

	s.httpServer = &http.Server{
		Addr:         s.addr(),
		Handler:      s.withConditionalMiddleware(s.setupRoutes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) addr() string {
	cfg := s.app.Config.Server
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.app.Logger.Info().Str("address", s.addr()).Msg("HTTP server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
