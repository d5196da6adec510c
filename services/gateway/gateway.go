// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway provides the chat completion gateway service for
// AleutianChat.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the LLM provider client, the completion
// orchestrator, conversation history storage, retrieval augmentation,
// and observability infrastructure.
//
// # Enterprise Integration
//
// The gateway supports dependency injection via extensions.ServiceOptions,
// enabling enterprise deployments to provide custom implementations of:
//   - IdentityProvider: Custom authentication (OIDC, API keys)
//   - AuditLogger: Compliance audit logging
//   - MessageFilter: PII detection and redaction
//
// # Usage
//
// Open source (uses no-op defaults):
//
//	cfg := gateway.Config{Port: 12210}
//	svc, err := gateway.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
//
// Enterprise (with custom implementations):
//
//	opts := &extensions.ServiceOptions{
//	    Identity:    oidcProvider,
//	    AuditLogger: enterpriseAudit,
//	}
//	svc, err := gateway.New(cfg, opts)
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/pkg/logging"
	"github.com/AleutianAI/AleutianChat/services/gateway/completion"
	"github.com/AleutianAI/AleutianChat/services/gateway/handlers"
	"github.com/AleutianAI/AleutianChat/services/gateway/history"
	"github.com/AleutianAI/AleutianChat/services/gateway/middleware"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/AleutianAI/AleutianChat/services/gateway/retrieval"
	"github.com/AleutianAI/AleutianChat/services/gateway/routes"
	"github.com/AleutianAI/AleutianChat/services/gateway/settings"
	"github.com/AleutianAI/AleutianChat/services/gateway/telemetry"
	"github.com/AleutianAI/AleutianChat/services/gateway/tools"
	"github.com/AleutianAI/AleutianChat/services/gateway/usage"
	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the gateway service.
//
// # Description
//
// Service abstracts the gateway lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	// SIGINT and SIGTERM trigger a graceful shutdown; a clean shutdown
	// returns nil.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers
	// must not modify routes after construction.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds gateway configuration options.
//
// # Description
//
// Config centralizes all configuration for the gateway service.
// Values are typically populated from environment variables by
// cmd/gateway, but can be set programmatically for testing.
//
// All fields are optional except LLM; missing values receive defaults
// in New().
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// MetricsPort serves Prometheus metrics on a dedicated listener.
	// Zero mounts /metrics on the main router instead.
	MetricsPort int

	// GinMode sets the Gin framework mode: "debug", "release", "test".
	// Default: uses the GIN_MODE env var or "debug".
	GinMode string

	// StreamMode selects NDJSON streaming for /conversation replies.
	// Default: true (buffered mode must be requested explicitly).
	StreamMode *bool

	// LLM configures the completion provider. Required.
	LLM llm.Config

	// Completion sets generation parameters, the system prompt, tool
	// gating, and the optional retrieval datasource.
	Completion completion.BuilderConfig

	// Tools configures the external tool catalog and invoker.
	Tools tools.Config

	// WeaviateURL is the conversation history store URL. If empty,
	// history features are disabled and history routes answer 404.
	WeaviateURL string

	// SettingsPath is the frontend settings YAML file. If empty, the
	// compiled-in defaults are served without a watcher file.
	SettingsPath string

	// Usage configures the InfluxDB token-usage recorder. If URL is
	// empty, usage recording is disabled.
	Usage usage.Config

	// Telemetry configures tracing and metrics export.
	// Zero value uses telemetry.DefaultConfig().
	Telemetry telemetry.Config

	// RateRPS is the per-user sustained request rate. Zero disables
	// rate limiting entirely.
	RateRPS float64

	// RateBurst is the per-user burst allowance. Only meaningful when
	// RateRPS is set.
	RateBurst int

	// LogLevel is the minimum log level name ("debug", "info", "warn",
	// "error"). Default: "info".
	LogLevel string

	// LogDir enables file logging alongside stderr when set.
	LogDir string

	// LogJSON switches stderr logs to JSON format.
	LogJSON bool

	// LogGCSBucket ships logs to a Google Cloud Storage bucket when
	// set. Empty disables cloud log export.
	LogGCSBucket string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; Run() owns the lifecycle goroutines.
type service struct {
	config Config
	opts   extensions.ServiceOptions

	logger       *logging.Logger
	router       *gin.Engine
	llmClient    llm.Client
	store        *history.WeaviateStore
	invoker      tools.Invoker
	watcher      *settings.Watcher
	usageCloser  func()
	rateLimiter  *middleware.RateLimiter
	telShutdown  func(context.Context) error
	metricsExtra http.Handler
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a gateway Service with the given configuration.
//
// # Description
//
// New initializes all gateway components in dependency order:
//  1. Applies default configuration for missing values
//  2. Configures structured logging
//  3. Initializes OpenTelemetry tracing and metric export
//  4. Initializes Prometheus gateway metrics
//  5. Connects the Weaviate history store (optional, non-fatal)
//  6. Creates the LLM provider client (fatal on failure)
//  7. Fetches the tool catalog and builds the invoker
//  8. Starts the frontend settings watcher
//  9. Wires the InfluxDB usage recorder (optional)
//  10. Sets up HTTP routes with extension options
//
// If opts is nil, extensions.DefaultOptions() is used.
//
// Outputs:
//   - Service: ready-to-run gateway
//   - error: non-nil if a required component fails to initialize
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	ctx := context.Background()

	s.initLogging(ctx)

	telShutdown, err := telemetry.Init(ctx, s.config.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telShutdown = telShutdown

	observability.InitMetrics()

	if err := s.initHistory(ctx); err != nil {
		// Not fatal. History routes answer 404 and /history/ensure
		// surfaces the probe failure to operators.
		slog.Warn("history store initialization failed, continuing without history",
			"error", err)
	}

	s.llmClient, err = llm.New(s.config.LLM)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.invoker = tools.LoadInvoker(ctx, s.config.Tools)

	s.watcher, err = settings.NewWatcher(s.config.SettingsPath)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize settings watcher: %w", err)
	}

	if s.config.RateRPS > 0 {
		s.rateLimiter = middleware.NewRateLimiter(s.config.RateRPS, s.config.RateBurst)
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
//
// # Description
//
// Runs three concurrent loops under one errgroup: the main HTTP
// server, the settings watcher, and (when MetricsPort is set) a
// dedicated Prometheus listener. SIGINT/SIGTERM cancel the group
// context and trigger graceful shutdown with a bounded drain window.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	group.Go(func() error {
		slog.Info("starting gateway server", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if s.config.MetricsPort > 0 && s.metricsExtra != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metricsExtra)
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		group.Go(func() error {
			slog.Info("starting metrics server", "port", s.config.MetricsPort)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		// Watcher exit is not fatal to the service; settings simply
		// stop hot-reloading.
		if err := s.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("settings watcher stopped", "error", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received, draining connections")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(drainCtx)
		}
		return srv.Shutdown(drainCtx)
	})

	return group.Wait()
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.StreamMode == nil {
		streaming := true
		cfg.StreamMode = &streaming
	}
	if cfg.Telemetry == (telemetry.Config{}) {
		cfg.Telemetry = telemetry.DefaultConfig()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

// initLogging installs the process-wide structured logger.
//
// A failed cloud exporter setup downgrades to local-only logging; the
// gateway never refuses to start over log shipping.
func (s *service) initLogging(ctx context.Context) {
	var exporter logging.LogExporter
	if s.config.LogGCSBucket != "" {
		gcs, err := logging.NewGCSExporter(ctx, logging.GCSExporterConfig{
			Bucket: s.config.LogGCSBucket,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "gcs log exporter disabled: %v\n", err)
		} else {
			exporter = gcs
		}
	}

	s.logger = logging.New(logging.Config{
		Level:    logging.ParseLevel(s.config.LogLevel),
		LogDir:   s.config.LogDir,
		Service:  "gateway",
		JSON:     s.config.LogJSON,
		Exporter: exporter,
	})
	slog.SetDefault(s.logger.Slog())
}

// initHistory connects the Weaviate conversation store and ensures the
// chat schema exists.
//
// A missing WeaviateURL is not an error; history features are simply
// disabled. A failed schema probe leaves the store wired so that
// /history/ensure can retry once the backend recovers.
func (s *service) initHistory(ctx context.Context) error {
	if s.config.WeaviateURL == "" {
		slog.Info("weaviate url not configured, history disabled")
		return nil
	}

	client, err := history.Connect(s.config.WeaviateURL)
	if err != nil {
		return fmt.Errorf("connect history store: %w", err)
	}
	s.store = history.NewWeaviateStore(client, history.DefaultConfig())

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.store.Init(initCtx); err != nil {
		return fmt.Errorf("ensure chat schema: %w", err)
	}

	slog.Info("history store initialized", "url", s.config.WeaviateURL)
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	// Usage recorder: nop unless InfluxDB is configured.
	var recorder completion.UsageRecorder = usage.NopRecorder{}
	if s.config.Usage.URL != "" {
		influx := usage.NewRecorder(s.config.Usage)
		recorder = influx
		s.usageCloser = influx.Close
		slog.Info("usage recorder initialized", "url", s.config.Usage.URL)
	}

	// Retrieval augmentation and document ingestion share the history
	// store's Weaviate connection.
	var retriever retrieval.Retriever
	var ingestor *retrieval.Ingestor
	if s.store != nil && s.config.Completion.Datasource != nil {
		client := s.store.Client()
		retriever = retrieval.NewWeaviateRetriever(client)
		ingestor = retrieval.NewIngestor(client)
		slog.Info("retrieval datasource initialized",
			"type", s.config.Completion.Datasource.Type)
	}

	builder := completion.NewRequestBuilder(s.config.Completion, s.invoker.Catalog(), retriever)
	orchestrator := completion.NewOrchestrator(s.llmClient, s.invoker, builder, recorder)

	deps := handlers.Deps{
		Orchestrator: orchestrator,
		LLM:          s.llmClient,
		Settings:     s.watcher,
		Ingestor:     ingestor,
		StreamMode:   *s.config.StreamMode,
		AuditLogger:  s.opts.AuditLogger,
	}
	if s.store != nil {
		deps.Store = s.store
	}
	handler := handlers.New(deps)

	s.metricsExtra = telemetry.MetricsHandler()

	routeDeps := routes.Deps{
		Handler:     handler,
		Identity:    s.opts.Identity,
		RateLimiter: s.rateLimiter,
	}
	if s.config.MetricsPort == 0 {
		routeDeps.Metrics = s.metricsExtra
	}

	s.router = gin.New()
	s.router.Use(gin.Logger(), gin.Recovery())
	s.router.Use(otelgin.Middleware(s.config.Telemetry.ServiceName))
	routes.SetupRoutes(s.router, routeDeps)
}

// cleanup releases all resources held by the service.
//
// Called when Run() exits or on initialization failure. Safe to call
// with partially initialized state.
func (s *service) cleanup() {
	if s.usageCloser != nil {
		s.usageCloser()
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			slog.Warn("settings watcher close error", "error", err)
		}
	}

	if s.telShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}

	if s.logger != nil {
		if err := s.logger.Close(); err != nil {
			slog.Warn("logger close error", "error", err)
		}
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
