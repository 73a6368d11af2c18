// Package server wires the nlq HTTP API, its backing services and the
// operational endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/TFMV/nlq/cmd/server/config"
	"github.com/TFMV/nlq/cmd/server/middleware"
	"github.com/TFMV/nlq/pkg/cache"
	"github.com/TFMV/nlq/pkg/infrastructure/converter"
	"github.com/TFMV/nlq/pkg/infrastructure/memory"
	"github.com/TFMV/nlq/pkg/infrastructure/metrics"
	"github.com/TFMV/nlq/pkg/llm"
	"github.com/TFMV/nlq/pkg/models"
	"github.com/TFMV/nlq/pkg/repositories/mongodb"
	"github.com/TFMV/nlq/pkg/services"
)

// rateLimitIdleTTL is how long an idle client's bucket is kept.
const rateLimitIdleTTL = 15 * time.Minute

// Server owns every long-lived component of a running nlq process.
type Server struct {
	config  *config.Config
	logger  zerolog.Logger
	metrics metrics.Collector

	// Core components
	mongoClient *mongo.Client
	gateway     *llm.Gateway
	allocator   *memory.TrackedAllocator
	schemaCache *cache.MemoryCache[*models.SchemaSummary]
	rateLimiter *middleware.RateLimiter

	// Services
	queryService  services.QueryService
	schemaService services.SchemaService

	// Listeners
	router        *gin.Engine
	httpServer    *http.Server
	metricsServer *metrics.MetricsServer
	grpcServer    *grpc.Server
	health        *healthChecker

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New connects to the store and the model, then builds services and routes.
// With model warm-up enabled, a failed warm-up aborts construction.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, collector metrics.Collector) (*Server, error) {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &Server{
		config:  cfg,
		logger:  logger,
		metrics: collector,
	}

	client, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout,
		logger.With().Str("component", "mongo").Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	srv.mongoClient = client

	provider, err := newProvider(ctx, cfg.Model)
	if err != nil {
		srv.disconnect()
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}
	srv.gateway = llm.NewGateway(provider, cfg.Model.GenerateTimeout, cfg.Model.WarmupTimeout, logger)

	if cfg.Model.Warmup {
		if err := srv.gateway.WarmUp(ctx); err != nil {
			srv.disconnect()
			return nil, fmt.Errorf("model warm-up failed: %w", err)
		}
	}

	if err := srv.buildServices(); err != nil {
		srv.disconnect()
		return nil, err
	}
	srv.buildTransport()

	return srv, nil
}

func newProvider(ctx context.Context, cfg config.ModelConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "genai":
		return llm.NewGenAIProvider(ctx, cfg.APIKey, cfg.Name, float32(cfg.Temperature))
	case "ollama":
		return llm.NewOllamaProvider(cfg.URL, cfg.Name, cfg.Temperature, nil), nil
	}
	return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
}

func (s *Server) buildServices() error {
	cfg := s.config
	db := s.mongoClient.Database(cfg.Mongo.Database)
	serviceMetrics := &serviceMetricsAdapter{collector: s.metrics}

	// Repositories
	queryRepo := mongodb.NewQueryRepository(db, cfg.Mongo.QueryTimeout, s.logger.With().Str("component", "query_repository").Logger())
	metadataRepo := mongodb.NewMetadataRepository(db, cfg.Mongo.QueryTimeout, s.logger.With().Str("component", "metadata_repository").Logger())

	projector := converter.NewBSONConverter(converter.DefaultMaxDepth, s.logger.With().Str("component", "projector").Logger())

	validator, err := services.NewPlanValidator(cfg.Pipeline.RepairJSON, newLoggerAdapter(s.logger, "plan_validator"))
	if err != nil {
		return fmt.Errorf("failed to create plan validator: %w", err)
	}

	executor := services.NewPlanExecutor(
		queryRepo,
		projector,
		cfg.Pipeline.StrictCollections,
		newLoggerAdapter(s.logger, "plan_executor"),
		serviceMetrics,
	)

	s.queryService = services.NewQueryService(
		s.gateway,
		validator,
		services.NewSanitizer(cfg.Pipeline.ForbiddenOperators),
		executor,
		cfg.Pipeline.MaxInputLength,
		newLoggerAdapter(s.logger, "query_service"),
		serviceMetrics,
	)

	s.schemaCache = cache.NewMemoryCache[*models.SchemaSummary](
		cache.DefaultConfig().WithTTL(cfg.Schema.CacheTTL),
	)
	s.schemaService = services.NewSchemaService(
		metadataRepo,
		projector,
		cfg.Mongo.Database,
		cfg.Schema.SampleSize,
		s.schemaCache,
		newLoggerAdapter(s.logger, "schema_service"),
		serviceMetrics,
	)

	s.allocator = memory.NewTrackedAllocator(nil)
	s.health = newHealthChecker(metadataRepo, cfg.Health.Interval, s.logger.With().Str("component", "health").Logger(), s.metrics)
	return nil
}

func (s *Server) buildTransport() {
	cfg := s.config

	if cfg.RateLimit.Enabled {
		s.rateLimiter = middleware.NewRateLimiter(
			cfg.RateLimit.RequestsPerMinute,
			cfg.RateLimit.Burst,
			rateLimitIdleTTL,
			s.logger.With().Str("component", "rate_limiter").Logger(),
		)
	}

	s.router = newRouter(cfg, routerDeps{
		queryService:  s.queryService,
		schemaService: s.schemaService,
		allocator:     s.allocator,
		pinger:        s.health.pinger,
		rateLimiter:   s.rateLimiter,
	}, s.logger, s.metrics)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	if cfg.Metrics.Enabled {
		s.metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address, cfg.Metrics.Path)
	}

	if cfg.Health.Enabled {
		s.grpcServer = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health.server)
		reflection.Register(s.grpcServer)
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled or a listener fails, then shuts down
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() {
		s.logger.Info().Str("address", s.config.Server.Address).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if s.metricsServer != nil {
		go func() {
			s.logger.Info().Str("address", s.config.Metrics.Address).Msg("Starting metrics server")
			if err := s.metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	if s.grpcServer != nil {
		listener, err := net.Listen("tcp", s.config.Health.Address)
		if err != nil {
			return fmt.Errorf("failed to create health listener: %w", err)
		}
		go func() {
			s.logger.Info().Str("address", s.config.Health.Address).Msg("gRPC health server listening")
			if err := s.grpcServer.Serve(listener); err != nil {
				errCh <- fmt.Errorf("health server: %w", err)
			}
		}()
	}

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.startBackground(bgCtx)

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Received shutdown signal")
	case runErr = <-errCh:
		s.logger.Error().Err(runErr).Msg("Listener failed")
	}
	cancel()

	s.logger.Info().Dur("timeout", s.config.Server.ShutdownTimeout).Msg("Starting graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := s.Close(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *Server) startBackground(ctx context.Context) {
	if s.config.Health.Enabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.health.run(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.housekeep()
			}
		}
	}()
}

// housekeep drops idle rate-limit buckets and publishes resource gauges.
func (s *Server) housekeep() {
	if s.rateLimiter != nil {
		if removed := s.rateLimiter.Sweep(); removed > 0 {
			s.logger.Debug().Int("removed", removed).Msg("Swept idle rate limiters")
		}
	}

	usage := s.allocator.Usage()
	s.metrics.RecordGauge("arrow_allocated_bytes", float64(usage.BytesUsed))
	s.metrics.RecordGauge("arrow_peak_bytes", float64(usage.PeakBytes))

	stats := s.schemaCache.Stats()
	s.metrics.RecordGauge("schema_cache_entries", float64(stats.Size))
}

// Close stops listeners and releases the store connection. It is safe to
// call more than once.
func (s *Server) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.health != nil {
			s.health.shutdown()
		}

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
				closeErr = err
			}
		}

		if s.grpcServer != nil {
			stopped := make(chan struct{})
			go func() {
				s.grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				s.grpcServer.Stop()
			}
		}

		if s.metricsServer != nil {
			if err := s.metricsServer.Stop(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Error stopping metrics server")
			}
		}

		s.wg.Wait()

		if s.schemaCache != nil {
			s.schemaCache.Clear(ctx)
		}
		s.disconnect()

		s.logger.Info().Msg("Server shutdown complete")
	})
	return closeErr
}

func (s *Server) disconnect() {
	if s.mongoClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.mongoClient.Disconnect(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error disconnecting from mongo")
	}
}
