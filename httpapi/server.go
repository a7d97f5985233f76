// Package httpapi serves the execution gateway over HTTP.
//
// Routes:
//
//	POST /execute   run a program and return its classified outcome
//	GET  /health    liveness
//	GET  /ready     isolation decision
//	GET  /metrics   Prometheus exposition
//	     /mcp       MCP streamable HTTP, when enabled
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/metrics"
	"github.com/isdmx/runbox/sandbox"
)

const readHeaderTimeout = 10 * time.Second

// Server is the HTTP gateway in front of the execution engine.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	executor  sandbox.SandboxExecutor
	isolation sandbox.IsolationSource
	metrics   *metrics.Collector
	limiter   *Limiter
	mcp       http.Handler
	router    chi.Router
	http      *http.Server
}

// Option defines a functional option for Server
type Option func(*Server)

// WithMCPHandler mounts h at /mcp
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) {
		s.mcp = h
	}
}

// New creates a Server and registers its routes.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	executor sandbox.SandboxExecutor,
	isolation sandbox.IsolationSource,
	collector *metrics.Collector,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger.Named("http"),
		executor:  executor,
		isolation: isolation,
		metrics:   collector,
		limiter:   NewLimiter(cfg.RateLimit),
		router:    chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	if s.cfg.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.admit)
		r.With(jsonContentType).Post("/execute", s.handleExecute)
		if s.mcp != nil {
			r.Handle("/mcp", s.mcp)
		}
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background. A bind failure is
// returned synchronously so the application fails to start.
func (s *Server) Start(context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.logger.Info("HTTP server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("mcp", s.mcp != nil))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight executions,
// bounded by server.shutdown_timeout_sec.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout())
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
