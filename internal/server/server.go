// Package server exposes the relay broker and the peer introducer over
// HTTP, together with health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BioHazard786/flipboard/internal/broker"
	"github.com/BioHazard786/flipboard/internal/config"
	"github.com/BioHazard786/flipboard/internal/introducer"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Addr   string
	Logger *slog.Logger
	// Registry receives the broker metrics. A fresh registry with the Go
	// and process collectors is used when nil.
	Registry *prometheus.Registry
}

type Server struct {
	addr       string
	logger     *slog.Logger
	registry   *prometheus.Registry
	hub        *broker.Hub
	introducer *introducer.Server
	router     chi.Router
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = config.DefaultAddr
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s := &Server{
		addr:       opts.Addr,
		logger:     opts.Logger.With("component", "server"),
		registry:   opts.Registry,
		hub:        broker.NewHub(broker.NewMetrics(opts.Registry), opts.Logger),
		introducer: introducer.NewServer(opts.Logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(config.RelayPath, s.ServeRelay(s.hub))
	r.Get(config.IntroducePath, s.ServeIntroducer(s.introducer))
	r.Get(config.HealthPath, s.serveHealth)
	r.Handle(config.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the broker and introducer loops until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
	go s.introducer.Run(ctx)
}

// Wait blocks until both loops have stopped.
func (s *Server) Wait() {
	<-s.hub.Done()
	<-s.introducer.Done()
}

// Run serves HTTP on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer func() {
		stopLoops()
		s.Wait()
	}()
	s.Start(loopCtx)

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	// Stopping the loops first sends close frames to every websocket,
	// which Shutdown does not track.
	stopLoops()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
