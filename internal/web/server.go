// Package web provides the HTTP API for policy ingestion.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/JonMunkholm/policyhub/internal/config"
	"github.com/JonMunkholm/policyhub/internal/core"
	"github.com/JonMunkholm/policyhub/internal/logging"
	"github.com/JonMunkholm/policyhub/internal/web/middleware"
)

// multipartOverhead is headroom above the file limit for multipart framing.
const multipartOverhead = 64 << 10

// Pinger reports dependency health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerDeps are the collaborators a Server needs.
type ServerDeps struct {
	Service  *core.Service
	Config   *config.Config
	Gatherer prometheus.Gatherer // nil disables /metrics
	Checks   map[string]Pinger   // named health checks for /healthz
}

// Server is the HTTP server for the policy ingestion API.
type Server struct {
	service  *core.Service
	cfg      *config.Config
	gatherer prometheus.Gatherer
	checks   map[string]Pinger
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a Server. ctx bounds background goroutines such as the
// rate limiter sweep.
func NewServer(ctx context.Context, deps ServerDeps) *Server {
	s := &Server{
		service:  deps.Service,
		cfg:      deps.Config,
		gatherer: deps.Gatherer,
		checks:   deps.Checks,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes(ctx)
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.CorrelationID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.Security.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.APIKeyHeader, logging.CorrelationHeader},
		ExposedHeaders: []string{logging.CorrelationHeader, chimw.RequestIDHeader},
	}).Handler)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(ctx context.Context) {
	s.router.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics.Enabled && s.gatherer != nil {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		general, upload := passthrough, passthrough
		if s.cfg.Rate.Enabled {
			general = middleware.NewRateLimiter(ctx, s.cfg.Rate.RequestsPerMinute, time.Minute).Middleware
			upload = middleware.NewRateLimiter(ctx, s.cfg.Rate.UploadLimit, time.Minute).Middleware
		}

		// Policies
		r.With(upload).Post("/policies/upload", s.handleUpload)
		r.With(general).Get("/policies", s.handleListPolicies)
		r.With(general).Get("/policies/summary", s.handleSummary)

		// Operations
		r.With(general).Get("/operations/{id}", s.handleGetOperation)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func passthrough(next http.Handler) http.Handler { return next }

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON-only API: nothing should be loaded from responses
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}

// envelope wraps successful responses.
type envelope struct {
	Data any `json:"data"`
}

// writeJSON encodes v inside the data envelope.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: v}); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
