// Package server exposes block searches over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/worksizing/internal/config"
	"github.com/me/worksizing/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"
)

const (
	version = "0.1.0"

	defaultSearchTimeout = 30 * time.Second
	defaultMaxConcurrent = 4
	historySize          = 100
)

// Server is the worksizing REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	defaults  config.SearchConfig
	startTime time.Time

	searchTimeout time.Duration
	searches      *semaphore.Weighted
	history       *history

	reg  *prometheus.Registry
	inst *metrics.Instruments
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithSearchDefaults sets the configuration applied to fields a search
// request omits.
func WithSearchDefaults(cfg config.SearchConfig) Option {
	return func(s *Server) {
		s.defaults = cfg
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, logger *slog.Logger, opts ...Option) *Server {
	logger = logger.With("component", "server")
	timeout, err := cfg.SearchTimeoutDuration()
	if err != nil {
		logger.Warn("using default search timeout", "error", err, "default", defaultSearchTimeout.String())
		timeout = defaultSearchTimeout
	}
	concurrent := cfg.MaxConcurrent
	if concurrent <= 0 {
		concurrent = defaultMaxConcurrent
	}

	s := &Server{
		router:        chi.NewRouter(),
		logger:        logger,
		config:        cfg,
		defaults:      config.DefaultSearchConfig(),
		startTime:     time.Now(),
		searchTimeout: timeout,
		searches:      semaphore.NewWeighted(int64(concurrent)),
		history:       newHistory(historySize),
		reg:           prometheus.NewRegistry(),
		inst:          metrics.NewInstruments(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.reg.MustRegister(collectors.NewGoCollector())
	s.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.inst.MustRegister(s.reg)

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/searches", func(r chi.Router) {
			r.Post("/", s.handleCreateSearch)
			r.Get("/", s.handleListSearches)
			r.Get("/{id}", s.handleGetSearch)
		})
	})
}
