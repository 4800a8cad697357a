package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dhruvsoni1802/browser-bridge/internal/session"
	"github.com/dhruvsoni1802/browser-bridge/internal/tools"
)

// Options configures the HTTP server
type Options struct {
	Port string
	// Metrics serves GET /metrics when set
	Metrics  http.Handler
	Recorder RequestRecorder
	Logger   *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new HTTP server exposing the tool table
func NewServer(registry *tools.Registry, sessions *session.Manager, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger, opts.Recorder))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handlers := NewHandlers(registry, sessions)

	router.Get("/health", handlers.Health)
	router.Get("/targets", handlers.ListTargets)

	router.Route("/tools", func(r chi.Router) {
		r.Get("/", handlers.ListTools)
		r.Post("/{name}", handlers.CallTool)
	})

	router.Route("/session", func(r chi.Router) {
		r.Get("/", handlers.GetSession)
		r.Delete("/", handlers.DisconnectSession)
	})

	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// WriteTimeout must outlast the longest chrome_wait
	server := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		router: router,
		server: server,
		logger: logger,
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
