// Package server provides the HTTP API for leakscan.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/leakscan/internal/config"
	"github.com/hyperjump/leakscan/internal/metrics"
	"github.com/hyperjump/leakscan/internal/service"
)

// OwnerHeader is read by the default OwnerResolver.
const OwnerHeader = "X-Owner-ID"

// AnonymousOwner owns uploads whose request names no owner.
const AnonymousOwner = "anonymous"

// OwnerResolver returns the owner a request acts for, or "" when it names none.
type OwnerResolver interface {
	Owner(r *http.Request) string
}

// HeaderOwner resolves the owner from a request header.
type HeaderOwner string

// Owner returns the trimmed header value.
func (h HeaderOwner) Owner(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(string(h)))
}

// WatchService manages drop directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the leakscan API.
type Server struct {
	svc     *service.Service
	cfg     *config.Config
	owners  OwnerResolver
	metrics *metrics.Metrics
	logger  *zap.Logger
	server  *http.Server

	watch      WatchService
	configPath string
	configMu   sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithOwnerResolver replaces the X-Owner-ID header resolver.
func WithOwnerResolver(o OwnerResolver) Option {
	return func(s *Server) { s.owners = o }
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWatch enables the drop-directory endpoints. Changes are saved to
// configPath when it is non-empty.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server over svc.
func NewServer(svc *service.Service, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		owners: HeaderOwner(OwnerHeader),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// Uploads stream arbitrarily large dumps and are bounded by size, not time.
	r.Post("/api/v1/documents", s.handleUpload)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5, "application/json", "text/csv"))

		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Get("/api/v1/documents/{id}", s.handleGetDocument)
		r.Get("/api/v1/search", s.handleSearch)
		r.Post("/api/v1/export", s.handleExport)
		r.Get("/api/v1/status", s.handleStatus)

		r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
