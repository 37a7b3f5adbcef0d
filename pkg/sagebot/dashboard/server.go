// Package dashboard provides the secret-gated HTTP admin surface for
// Sagebot: process counters, taught-pattern CRUD, and a liveness probe.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jholhewres/sagebot/pkg/sagebot/store"
)

// Config holds the dashboard server settings.
type Config struct {
	// Enabled turns the dashboard on/off.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address (default ":8080").
	Address string `yaml:"address"`

	// Secret is the shared secret required on every gated route. When
	// unset, gated routes answer 500: the server refuses to run an
	// unauthenticated admin surface by accident.
	Secret string `yaml:"secret"`
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg       Config
	counters  *store.CounterStore
	patterns  *store.PatternStore
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a dashboard server over the counter and pattern stores.
func New(cfg Config, counters *store.CounterStore, patterns *store.PatternStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	return &Server{
		cfg:      cfg,
		counters: counters,
		patterns: patterns,
		logger:   logger.With("component", "dashboard"),
	}
}

// Handler builds the route tree with middleware applied. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness (always public).
	mux.HandleFunc("/health", s.handleHealth)

	// Gated routes.
	mux.HandleFunc("/", s.handleCounters)
	mux.HandleFunc("/teach/", s.handleTeach)

	return s.securityHeadersMiddleware(s.requestLogMiddleware(s.authMiddleware(mux)))
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()
	s.server = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Handler(),
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("dashboard server error", "error", err)
		}
	}()
	s.logger.Info("dashboard started", "address", s.cfg.Address)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("dashboard stopping")
	return s.server.Shutdown(ctx)
}
