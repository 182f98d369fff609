// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package observability exposes Prometheus metrics and health probes on a
// listener separate from the public API.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the credential store is reachable.
type ReadinessChecker func() bool

// Probe states reported in health responses.
const (
	StatusAlive    = "alive"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// Server serves /metrics and the health probes.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *AuthMetrics
	isReady  ReadinessChecker
	logger   *slog.Logger

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger  *slog.Logger
	version string
	commit  string
}

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = logger }
}

// WithBuildInfo exports codesnip_build_info{version,commit} = 1.
func WithBuildInfo(version, commit string) ServerOption {
	return func(o *serverOptions) {
		o.version = version
		o.commit = commit
	}
}

// NewServer creates a Server for addr ("127.0.0.1:9100", or ":0" for an
// ephemeral port). A nil ready reports ready.
func NewServer(addr string, ready ReadinessChecker, opts ...ServerOption) *Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if o.version != "" {
		buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codesnip_build_info",
			Help: "Build metadata of the running binary",
		}, []string{"version", "commit"})
		buildInfo.WithLabelValues(o.version, o.commit).Set(1)
		registry.MustRegister(buildInfo)
	}

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewAuthMetrics(registry),
		isReady:  ready,
		logger:   o.logger,
	}
}

// Metrics returns the recorder for the auth service, the gate, and the router.
func (s *Server) Metrics() *AuthMetrics {
	return s.metrics
}

// Handler returns the mux serving the metrics and probe endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, StatusAlive)
	})
	mux.HandleFunc("GET /healthz/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if s.isReady != nil && !s.isReady() {
			writeProbe(w, http.StatusServiceUnavailable, StatusNotReady)
			return
		}
		writeProbe(w, http.StatusOK, StatusReady)
	})
	return mux
}

// Start listens on the configured address and serves in the background. The
// returned channel receives a serve error, if any, and is closed when the
// server stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").With("addr", s.Addr()).Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = listener
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
	}
	s.httpServer = nil
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound listen address, or "" before the first Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func writeProbe(w http.ResponseWriter, status int, state string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // the prober may have gone away
	json.NewEncoder(w).Encode(map[string]string{"status": state})
}
