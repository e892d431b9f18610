// Package server provides the HTTP server of the Oscar service.
// It includes Gin-based routing, the request pipeline, the service lifecycle
// and graceful shutdown handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/rotationalio/oscar/internal/config"
	"github.com/rotationalio/oscar/internal/docling"
	"github.com/rotationalio/oscar/internal/middleware"
	"github.com/rotationalio/oscar/internal/observability"
	"github.com/rotationalio/oscar/internal/state"
	"github.com/rotationalio/oscar/internal/version"
)

// Server represents the HTTP server of the Oscar service.
// It encapsulates the Gin router, configuration, logger, and service state.
//
// The server provides:
//   - Probe endpoints (/healthz, /livez, /readyz) and /v1/status
//   - Document conversion endpoints (/v1/docling/)
//   - Prometheus metrics endpoint (/metrics)
//   - OpenAPI documentation (/openapi.json, /docs, /swagger)
//   - Tracing, request logging and recovery middleware
//   - Graceful shutdown and maintenance mode via signals
//
// Example:
//
//	srv, err := server.New(cfg, logger, state.NewStore(), docling.Unavailable{})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
type Server struct {
	config     *config.Config
	logger     *observability.Logger
	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	state      *state.Store
	converter  docling.Converter
	clock      clock.PassiveClock

	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	registry       *prometheus.Registry
	metrics        *observability.Metrics

	openAPI     *openapi3.T
	openAPIJSON []byte
	openAPISpec []byte

	shutdownOnce sync.Once // Ensures shutdown logic runs only once
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithClock sets the clock used for uptime and request latency.
func WithClock(clk clock.PassiveClock) Option {
	return func(s *Server) {
		s.clock = clk
	}
}

// WithTracerProvider sets the provider of server and handler spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}

// WithRegistry sets the Prometheus registry served on the metrics endpoint.
// Defaults to a new registry with the Go and process collectors.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// New creates a new Server with the given configuration, logger, state store
// and document converter. It initializes the Gin router, sets up middleware,
// and configures routes.
//
// The function will panic if essential dependencies are missing.
func New(cfg *config.Config, logger *observability.Logger, store *state.Store, converter docling.Converter, opts ...Option) (*Server, error) {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if store == nil {
		panic("state store cannot be nil")
	}
	if converter == nil {
		converter = docling.Unavailable{}
	}

	// Set Gin mode based on configuration
	gin.SetMode(cfg.Server.GinMode)

	router := gin.New()
	router.HandleMethodNotAllowed = true

	srv := &Server{
		config:    cfg,
		logger:    logger,
		router:    router,
		state:     store,
		converter: converter,
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.clock == nil {
		srv.clock = clock.RealClock{}
	}
	if srv.tracerProvider == nil {
		srv.tracerProvider = otel.GetTracerProvider()
	}
	srv.tracer = srv.tracerProvider.Tracer(observability.TracerName)

	if err := srv.loadOpenAPISpec(); err != nil {
		return nil, err
	}

	if cfg.Observability.Metrics.Enabled {
		if err := srv.initMetrics(); err != nil {
			return nil, err
		}
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

// initMetrics registers the request metrics and the service state collector.
func (s *Server) initMetrics() error {
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	namespace := s.config.Observability.Metrics.Namespace
	if err := s.registry.Register(observability.NewStateCollector(namespace, s.state, s.clock)); err != nil {
		return fmt.Errorf("failed to register state collector: %w", err)
	}

	s.metrics = observability.NewMetrics(namespace, s.registry)
	return nil
}

// setupMiddleware configures the request pipeline. Stages run in the order
// they are added; the observability stage is last so that it wraps the
// handler directly and recovers any panic before the outer stages see it.
func (s *Server) setupMiddleware() {
	// Server spans; everything below runs inside the request span
	s.router.Use(otelgin.Middleware(s.config.Service.Name,
		otelgin.WithTracerProvider(s.tracerProvider),
		otelgin.WithPropagators(otel.GetTextMapPropagator()),
	))

	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(middleware.SecurityHeaders())

	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics, s.clock))
	}

	s.router.Use(middleware.RequestObservability(middleware.ObservabilityConfig{
		Logger:  s.logger.Access(),
		Service: s.config.Service.Name,
		Version: version.Short(),
		Metrics: s.metrics,
		Clock:   s.clock,
	}))
}

// Listen binds the configured address. Start calls it if it has not been
// called already; calling it first lets the caller learn the bound address.
func (s *Server) Listen() (net.Addr, error) {
	if s.listener != nil {
		return s.listener.Addr(), nil
	}

	listener, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}
	return listener.Addr(), nil
}

// Start starts the HTTP server and blocks until the server is shut down.
// It supports graceful shutdown on SIGINT and SIGTERM, and toggles
// maintenance mode on SIGUSR1 (enter) and SIGUSR2 (leave).
//
// Returns an error if the server fails to start or encounters an error during shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	go func() {
		select {
		case sig := <-shutdown:
			s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.Run(ctx)
}

// Run serves requests until ctx is cancelled or the server fails, then shuts
// down gracefully. The service is marked Online once the listener is bound
// and Stopping before in-flight requests are drained.
func (s *Server) Run(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting HTTP server",
			zap.String("address", addr.String()),
			zap.String("mode", s.config.Server.GinMode),
			zap.String("version", version.Version()),
		)

		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	s.state.SetState(state.Online)

	maintenance := make(chan os.Signal, 1)
	signal.Notify(maintenance, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(maintenance)

	for {
		select {
		case err := <-serverErrors:
			s.state.SetState(state.Stopping)
			return fmt.Errorf("server error: %w", err)

		case sig := <-maintenance:
			if sig == syscall.SIGUSR1 {
				s.EnterMaintenance()
			} else {
				s.ExitMaintenance()
			}

		case <-ctx.Done():
			return s.Shutdown()
		}
	}
}

// EnterMaintenance takes the service out of rotation: readiness fails until
// ExitMaintenance is called. Uptime keeps counting from the original start.
func (s *Server) EnterMaintenance() {
	prev := s.state.Transition(state.Maintenance)
	s.logger.Info("entering maintenance mode", zap.Stringer("previous_state", prev))
}

// ExitMaintenance puts the service back in rotation.
func (s *Server) ExitMaintenance() {
	prev := s.state.Transition(state.Online)
	s.logger.Info("leaving maintenance mode", zap.Stringer("previous_state", prev))
}

// Shutdown gracefully shuts down the HTTP server.
// The service is marked Stopping first so that readiness fails while active
// requests complete or the shutdown timeout expires.
// This method is safe to call multiple times - only the first call will execute.
//
// Returns an error if the shutdown fails.
func (s *Server) Shutdown() error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.state.SetState(state.Stopping)

		s.logger.Info("initiating graceful shutdown",
			zap.Duration("timeout", s.config.Server.ShutdownTimeout),
		)

		if s.httpServer == nil {
			return
		}

		// Serve closes the listener on shutdown; this covers a listener that was never served.
		defer func() { _ = s.listener.Close() }()

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(
			context.Background(),
			s.config.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("error during shutdown", zap.Error(err))
			shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
			return
		}

		s.logger.Info("server shutdown complete")
	})

	return shutdownErr
}

// Router returns the underlying Gin router.
// This is useful for testing and adding custom routes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Registry returns the Prometheus registry served on the metrics endpoint,
// or nil if metrics are disabled.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}
