// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
// Package orchestrator provides the Wire Pro HTTP service.
//
// This package owns the service lifecycle: it wires the answer pipeline,
// the conversation store and the metrics registry into the Gin route table,
// sets up OpenTelemetry tracing and runs the HTTP server until its context
// is cancelled.
//
// # Usage
//
//	svc, err := orchestrator.New(orchestrator.Config{Port: 8080}, orchestrator.Deps{
//	    Pipeline:      pipe,
//	    Conversations: store,
//	})
//	if err != nil {
//	    return err
//	}
//	return svc.Run(ctx)
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wirepro/wirepro/services/orchestrator/conversation"
	"github.com/wirepro/wirepro/services/orchestrator/middleware"
	"github.com/wirepro/wirepro/services/orchestrator/observability"
	"github.com/wirepro/wirepro/services/orchestrator/routes"
	"github.com/wirepro/wirepro/services/pipeline"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the Wire Pro HTTP service.
//
// # Thread Safety
//
// Run blocks and should only be called once per instance. Router is safe
// to call at any time.
type Service interface {
	// Run serves HTTP until ctx is cancelled or the listener fails, then
	// drains in-flight requests for at most Config.ShutdownTimeout and
	// releases the tracer. It returns nil after a clean shutdown.
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the service options. Zero values are replaced by
// applyConfigDefaults.
type Config struct {
	// Port is the HTTP server port. Default: 8080
	Port int

	// ServiceName names the service in traces. Default: "wirepro"
	ServiceName string

	// OTelEndpoint is the OTLP gRPC collector address. Empty disables
	// trace export; spans are still created against the no-op provider.
	OTelEndpoint string

	// EnableMetrics serves /metrics from Deps.Registry.
	EnableMetrics bool

	// GinMode sets the Gin framework mode: "debug", "release" or "test".
	// Empty keeps Gin's default.
	GinMode string

	// RateLimitRPS and RateLimitBurst bound /v1 requests per client IP.
	// RateLimitRPS <= 0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// MaxImageBytes bounds an attached photo. Default: 8 MiB
	MaxImageBytes int64

	// RequestTimeout bounds one request end to end. Default: 120s
	RequestTimeout time.Duration

	// ShutdownTimeout bounds the graceful drain. Default: 10s
	ShutdownTimeout time.Duration
}

// Deps are the collaborators built by the caller.
type Deps struct {
	Pipeline *pipeline.Pipeline
	// Conversations may be nil to run without persistence.
	Conversations conversation.Store
	Metrics       *observability.Metrics
	// Registry backs /metrics. Nil uses the default Prometheus registry.
	Registry prometheus.Gatherer
	Logger   *slog.Logger
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New
// returns.
type service struct {
	config        Config
	deps          Deps
	logger        *slog.Logger
	router        *gin.Engine
	tracerCleanup func(context.Context)
}

// New builds the service and its router.
//
// # Description
//
// Applies config defaults, initializes tracing when an endpoint is set and
// registers every route. A tracer failure is logged and the service runs
// without export rather than failing to start.
//
// # Inputs
//
//   - cfg: service options.
//   - deps: Pipeline is required, the rest is optional.
//
// # Outputs
//
//   - Service: ready to Run.
//   - error: when a required dependency is missing.
func New(cfg Config, deps Deps) (Service, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("orchestrator: pipeline is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.DefaultGatherer
	}
	s := &service{
		config: applyConfigDefaults(cfg),
		deps:   deps,
		logger: deps.Logger,
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			s.logger.Warn("Tracing disabled, OTLP exporter setup failed",
				"endpoint", s.config.OTelEndpoint,
				"error", err)
		} else {
			s.tracerCleanup = cleanup
		}
	}

	s.initRouter()
	return s, nil
}

// Run implements Service.
func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting Wire Pro server",
			"port", s.config.Port,
			"providers", s.deps.Pipeline.Providers(),
			"persistence", s.deps.Conversations != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down Wire Pro server", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// Router implements Service.
func (s *service) Router() *gin.Engine {
	return s.router
}

// applyConfigDefaults fills zero-valued options.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "wirepro"
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = 8 << 20
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP gRPC trace exporter to send spans to the configured
// collector and installs it as the global tracer provider.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses an insecure gRPC connection (internal networks only)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc client: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.config.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	s.logger.Info("Tracing enabled", "endpoint", s.config.OTelEndpoint, "service", s.config.ServiceName)
	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown tracer provider", "error", err)
		}
		if err := conn.Close(); err != nil {
			s.logger.Warn("failed to close OTLP connection", "error", err)
		}
	}, nil
}

// initRouter creates the Gin engine with tracing and registers routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.logger))
	s.router.Use(otelgin.Middleware(s.config.ServiceName))
	s.router.Use(requestTimeout(s.config.RequestTimeout))
	s.router.MaxMultipartMemory = s.config.MaxImageBytes + 1<<20

	var limiter *middleware.IPRateLimiter
	if s.config.RateLimitRPS > 0 {
		limiter = middleware.NewIPRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)
	}
	var gatherer prometheus.Gatherer
	if s.config.EnableMetrics {
		gatherer = s.deps.Registry
	}

	routes.SetupRoutes(s.router, routes.Deps{
		Answerer:      s.deps.Pipeline,
		Engine:        s.deps.Pipeline.Engine(),
		Conversations: s.deps.Conversations,
		Metrics:       s.deps.Metrics,
		Gatherer:      gatherer,
		Limiter:       limiter,
		Providers:     s.deps.Pipeline.Providers(),
		MaxImageBytes: s.config.MaxImageBytes,
	})
}

// cleanup releases resources held by the service. The conversation store
// belongs to the caller and is not closed here.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// requestTimeout bounds the request context handed to handlers.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// requestLogger writes one structured record per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", middleware.GetRequestID(c))
	}
}
