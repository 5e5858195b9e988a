// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package observability serves Prometheus metrics and health probes, and
// instruments the HTTP gateway.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Probe paths.
const (
	PathMetrics   = "/metrics"
	PathLiveness  = "/healthz/liveness"
	PathReadiness = "/healthz/readiness"
)

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 2 * time.Second

// ReadinessChecker returns whether the service is ready to accept requests.
type ReadinessChecker func() bool

// Check probes one backing dependency, such as the session store.
type Check func(ctx context.Context) error

// NewRegistry returns a registry carrying the Go runtime and process collectors.
// Callers add their own metrics to it before handing it to NewServer.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// Option configures a Server.
type Option func(*Server)

// WithCheck adds a named dependency check to the readiness probe.
func WithCheck(name string, check Check) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.checkTimeout = d
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server exposes the metrics and health endpoints.
type Server struct {
	addr         string
	listener     net.Listener
	httpServer   *http.Server
	registry     *prometheus.Registry
	isReady      ReadinessChecker
	checks       map[string]Check
	checkTimeout time.Duration
	logger       *slog.Logger
	running      atomic.Bool
}

// NewServer creates a server for addr ("host:port"; ":9100" listens on all
// interfaces). A nil readiness checker counts as ready and a nil registry
// gets a fresh one from NewRegistry.
func NewServer(addr string, readinessChecker ReadinessChecker, registry *prometheus.Registry, opts ...Option) *Server {
	if registry == nil {
		registry = NewRegistry()
	}
	s := &Server{
		addr:         addr,
		registry:     registry,
		isReady:      readinessChecker,
		checks:       make(map[string]Check),
		checkTimeout: DefaultCheckTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the router of the probe endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, PathMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	r.Get(PathLiveness, s.handleLiveness)
	r.Get(PathReadiness, s.handleReadiness)
	return r
}

// Start begins serving. The returned channel receives a serve failure and is
// closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		// Local httpSrv avoids racing a later Start.
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Leave it stoppable.
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// readiness is the body of the readiness probe.
type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, readiness{Status: "ok"})
}

// handleReadiness answers 503 while the process is not ready or any
// dependency check fails.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isReady != nil && !s.isReady() {
		writeProbe(w, http.StatusServiceUnavailable, readiness{Status: "not ready"})
		return
	}

	body := readiness{Status: "ok"}
	status := http.StatusOK
	for _, name := range s.checkNames() {
		ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
		err := s.checks[name](ctx)
		cancel()

		if body.Checks == nil {
			body.Checks = make(map[string]string, len(s.checks))
		}
		if err != nil {
			s.logger.WarnContext(r.Context(), "readiness check failed", "check", name, "error", err)
			body.Checks[name] = "failing"
			body.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		body.Checks[name] = "ok"
	}
	writeProbe(w, status, body)
}

func (s *Server) checkNames() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeProbe(w http.ResponseWriter, status int, body readiness) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
