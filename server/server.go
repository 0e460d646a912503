// Package server runs a registry tree as a process: the RPC listener, an
// optional Prometheus metrics listener, tracing and docs generation, with
// graceful shutdown when the context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc/pool"

	"github.com/mnehpets/schemarpc/config"
	"github.com/mnehpets/schemarpc/docs"
	"github.com/mnehpets/schemarpc/jsonrpc"
	"github.com/mnehpets/schemarpc/tracing"
)

// Server serves one registry tree.
type Server struct {
	root    *jsonrpc.Registry
	cfg     config.Config
	logger  logr.Logger
	metrics *metrics.Set
	started time.Time

	// traceOut receives spans from the stdout exporter.
	traceOut io.Writer
}

// New creates a Server. Nothing is started until Run or Serve.
func New(root *jsonrpc.Registry, cfg config.Config, logger logr.Logger) *Server {
	return &Server{
		root:    root,
		cfg:     cfg,
		logger:  logger.WithName("server"),
		metrics: metrics.NewSet(),
		started: time.Now(),
	}
}

// Metrics returns the set RPC metrics are recorded into.
func (s *Server) Metrics() *metrics.Set {
	return s.metrics
}

// Run listens on the configured addresses and serves until ctx is
// cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	var metricsLn net.Listener
	if s.cfg.MetricsAddr != "" {
		if metricsLn, err = net.Listen("tcp", s.cfg.MetricsAddr); err != nil {
			ln.Close()
			return fmt.Errorf("server: listen metrics: %w", err)
		}
	}
	return s.Serve(ctx, ln, metricsLn)
}

// Serve serves on the given listeners until ctx is cancelled. metricsLn may
// be nil. Both listeners are closed on return.
func (s *Server) Serve(ctx context.Context, ln, metricsLn net.Listener) error {
	abort := func(err error) error {
		ln.Close()
		if metricsLn != nil {
			metricsLn.Close()
		}
		return err
	}

	provider, err := tracing.NewProvider(ctx, s.cfg.Tracing, s.traceOut)
	if err != nil {
		return abort(err)
	}
	e, err := s.endpoint(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return abort(err)
	}

	servers := []*http.Server{{Handler: e.Handler()}}
	listeners := []net.Listener{ln}
	if metricsLn != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /metrics", s.writeMetrics)
		servers = append(servers, &http.Server{Handler: mux})
		listeners = append(listeners, metricsLn)
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()
	for i, srv := range servers {
		l := listeners[i]
		p.Go(func(context.Context) error {
			s.logger.Info("listening", "addr", l.Addr().String())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: serve %s: %w", l.Addr(), err)
			}
			return nil
		})
	}
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return s.shutdown(servers, provider)
	})
	return p.Wait()
}

// endpoint seals the registry, writes the docs if configured and builds the
// RPC endpoint.
func (s *Server) endpoint(provider *tracing.Provider) (*jsonrpc.Endpoint, error) {
	e, err := jsonrpc.NewEndpoint(s.root, s.endpointOptions(provider)...)
	if err != nil {
		return nil, err
	}
	if s.cfg.DocsDir != "" {
		if err := docs.WriteDir(s.cfg.DocsDir, s.root); err != nil {
			return nil, err
		}
		s.logger.Info("wrote API docs", "dir", s.cfg.DocsDir)
	}
	return e, nil
}

func (s *Server) endpointOptions(provider *tracing.Provider) []jsonrpc.Option {
	opts := []jsonrpc.Option{
		jsonrpc.WithDevelopment(s.cfg.Development),
		jsonrpc.WithCORS(s.cfg.CORS),
		jsonrpc.WithCORSOrigin(s.cfg.CORSOrigin),
		jsonrpc.WithLogger(s.logger.WithName("rpc")),
		jsonrpc.WithMetrics(s.metrics),
		jsonrpc.WithMaxBodyBytes(s.cfg.MaxBodyBytes),
		jsonrpc.WithMaxBatchSize(s.cfg.MaxBatchSize),
		jsonrpc.WithBatchConcurrency(s.cfg.BatchConcurrency),
	}
	if provider.Enabled() {
		opts = append(opts, jsonrpc.WithTracer(provider.Tracer()))
	}
	return opts
}

// shutdown stops accepting connections and waits up to ShutdownTimeout for
// in-flight requests.
func (s *Server) shutdown(servers []*http.Server, provider *tracing.Provider) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down")
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := provider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) writeMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
	s.metrics.WritePrometheus(w)
	fmt.Fprintf(w, "schemarpc_uptime_seconds %d\n", int(time.Since(s.started).Seconds()))
}
