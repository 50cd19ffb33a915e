// Package server exposes the mfdesk REST API and serves the dashboard SPA.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/mfdesk/internal/app"
	"github.com/bobmcallan/mfdesk/internal/common"
)

// Server wraps the HTTP server and application reference.
type Server struct {
	app     *app.App
	server  *http.Server
	logger  *common.Logger
	limiter     *ipRateLimiter
	chatLimiter *ipRateLimiter
	spa         http.Handler
}

// NewServer creates the HTTP server for the API and SPA.
func NewServer(a *app.App) (*Server, error) {
	spa, err := newSPAHandler(a.Config.Server.StaticDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		app:         a,
		logger:      a.Logger,
		limiter:     newIPRateLimiter(a.Config.Auth.LoginRate, a.Config.Auth.LoginBurst),
		chatLimiter: newIPRateLimiter(a.Config.Chat.RateLimit, a.Config.Chat.RateBurst),
		spa:         spa,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, a.Logger, a.Config, a.AuthService)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
