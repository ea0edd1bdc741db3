// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/grimoire-dev/grimoire/internal/assistant"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// DataDir is the knowledge-base directory the ingest endpoint reads.
	DataDir string
}

// Server wraps a chi router with a huma API over the assistant.
type Server struct {
	router    chi.Router
	api       huma.API
	cfg       Config
	assistant *assistant.Assistant
	log       *slog.Logger
}

// New creates a Server with chi router, huma API, health endpoint, and
// CORS.
func New(cfg Config, a *assistant.Assistant, log *slog.Logger) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, grimerr.New(grimerr.CodeConfigValidateInvalidValue, "server: listen address is required")
	}
	if a == nil {
		return nil, grimerr.New(grimerr.CodeConfigValidateInvalidValue, "server: assistant is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 120 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("Grimoire", "0.1.0")
	humaConfig.Info.Description = "Grounded knowledge-base assistant API"
	api := humachi.New(r, humaConfig)

	srv := &Server{
		router:    r,
		api:       api,
		cfg:       cfg,
		assistant: a,
		log:       log,
	}
	srv.registerRoutes()

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeServerStartFailure, "server: listening on %s: %w", s.cfg.ListenAddr, err)
	}
	s.log.Info("http server listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return grimerr.Errorf(grimerr.CodeServerInternalFailure, "server: shutting down: %w", err)
	}

	return <-errCh
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
