// Package server wires the HTTP surface: the public initialize/validate
// channel, the private status channel, the identity document and health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/config"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/identity"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/server/middleware"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/validation"
)

type Server struct {
	config   *config.ServerEnvironment
	logger   *slog.Logger
	router   *chi.Mux
	service  *validation.Service
	identity *identity.Provider
}

func NewServer(
	cfg *config.ServerEnvironment,
	service *validation.Service,
	identityProvider *identity.Provider,
	logger *slog.Logger,
) *Server {
	server := &Server{
		config:   cfg,
		logger:   logger,
		router:   chi.NewRouter(),
		service:  service,
		identity: identityProvider,
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(60 * time.Second))
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxRequestBytes))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Post("/initialize", s.handleInitialize)
	s.router.Post("/validate", s.handleValidate)

	// the status channel is not anonymous: polling requires the session's
	// bearer access token, see handleStatus
	s.router.Get("/status/{subject}", s.handleStatus)

	s.router.Get("/identity", s.handleIdentity)
	s.router.Get("/identity/{element}", s.handleIdentity)
	s.router.Get("/identity/{element}/{type}", s.handleIdentity)
}

// Router exposes the configured mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}
