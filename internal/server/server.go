package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shiori-ai/shiori/internal/auth"
	"github.com/shiori-ai/shiori/internal/ratelimit"
	"github.com/shiori-ai/shiori/internal/synthesis"
)

// Server is the query engine's HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// ServerConfig holds dependencies and settings for creating a Server.
type ServerConfig struct {
	Orchestrator *synthesis.Orchestrator
	JWTMgr       *auth.JWTManager
	Logger       *slog.Logger

	// APIKeys enables X-API-Key auth for service callers; nil disables it.
	APIKeys *auth.KeyStore

	// Health reports backend liveness; nil means always healthy.
	Health func() error

	// RateLimiter caps per-tenant request rate on authed routes.
	RateLimiter ratelimit.Limiter

	// OpenAPISpec is served at /openapi.yaml when non-empty.
	OpenAPISpec []byte

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates an HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := &Handlers{
		orchestrator: cfg.Orchestrator,
		health:       cfg.Health,
		logger:       cfg.Logger,
		version:      cfg.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	if len(cfg.OpenAPISpec) > 0 {
		mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(cfg.OpenAPISpec)
		})
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	authed := func(fn http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.JWTMgr, cfg.APIKeys, rateLimitMiddleware(limiter, cfg.Logger, fn))
	}
	mux.Handle("POST /v1/ask", authed(h.HandleAsk))
	mux.Handle("POST /v1/ask/stream", authed(h.HandleAskStream))

	var handler http.Handler = mux
	handler = maxBodyMiddleware(cfg.MaxRequestBodyBytes, handler)
	handler = tracingMiddleware(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("server: listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
