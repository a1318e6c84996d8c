// Package httpapi exposes smartcut's cut-job pipeline over HTTP: job
// submission, status polling, cancellation, and a progress event stream,
// documented as an OpenAPI schema via huma.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/smartcut/internal/config"
	"github.com/jmylchreest/smartcut/internal/httpmiddleware"
	"github.com/jmylchreest/smartcut/internal/observability"
)

// Server is the smartcut HTTP control API.
type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with the given configuration. version
// is surfaced in the OpenAPI spec and should match the build version.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	// Successful requests log by default; an operator can quiet the
	// control API down via the runtime settings toggle.
	observability.SetRequestLogging(true)

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(httpmiddleware.RequestID)
	router.Use(httpmiddleware.NewLoggingMiddleware(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(httpmiddleware.CORSWithConfig(httpmiddleware.CORSConfig{
		AllowedOrigins:   corsOrigins(cfg.CORSOrigins),
		AllowedMethods:   httpmiddleware.DefaultCORSConfig().AllowedMethods,
		AllowedHeaders:   httpmiddleware.DefaultCORSConfig().AllowedHeaders,
		ExposedHeaders:   httpmiddleware.DefaultCORSConfig().ExposedHeaders,
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	// SSE (text/event-stream) requires unbuffered streaming; compression
	// interferes with flushing, so the job progress stream is excluded.
	router.Use(httpmiddleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	humaConfig := huma.DefaultConfig("smartcut API", version)
	humaConfig.Info.Description = "Frame-accurate Smart Cut editing for H.264/H.265 elementary streams"

	api := humachi.New(router, humaConfig)

	return &Server{
		config: cfg,
		router: router,
		api:    api,
		logger: logger,
	}
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// API returns the Huma API instance for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	addr := s.config.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", slog.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s.logger.Info("shutting down HTTP server", slog.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and handles graceful shutdown. It
// blocks until ctx is cancelled or the server fails to start.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
