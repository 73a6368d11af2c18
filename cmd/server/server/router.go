package server

import (
	"context"
	"net/http"
	"time"

	arrowmemory "github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/TFMV/nlq/cmd/server/config"
	"github.com/TFMV/nlq/cmd/server/middleware"
	"github.com/TFMV/nlq/pkg/handlers"
	"github.com/TFMV/nlq/pkg/infrastructure/metrics"
	"github.com/TFMV/nlq/pkg/services"
)

const healthzTimeout = 2 * time.Second

// pinger checks store reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

type routerDeps struct {
	queryService  services.QueryService
	schemaService services.SchemaService
	allocator     arrowmemory.Allocator
	pinger        pinger
	rateLimiter   *middleware.RateLimiter // nil disables rate limiting
}

// newRouter builds the gin engine. /healthz sits outside auth and rate
// limiting; everything under /api passes through both.
func newRouter(cfg *config.Config, deps routerDeps, logger zerolog.Logger, collector metrics.Collector) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.NewRecoveryMiddleware(logger.With().Str("component", "recovery_middleware").Logger()).Handler(),
		middleware.RequestID(),
		middleware.NewLoggingMiddleware(logger.With().Str("component", "http").Logger()).Handler(),
		middleware.NewMetricsMiddleware(&middlewareMetricsAdapter{collector: collector}).Handler(),
	)

	r.GET("/healthz", healthz(deps.pinger))

	api := r.Group("/api")
	if deps.rateLimiter != nil {
		api.Use(deps.rateLimiter.Handler())
	}
	api.Use(middleware.NewAuthMiddleware(cfg.Auth, logger.With().Str("component", "auth_middleware").Logger()).Handler())

	handlerMetrics := &handlerMetricsAdapter{collector: collector}
	handlers.NewQueryHandler(
		deps.queryService,
		deps.schemaService,
		deps.allocator,
		newLoggerAdapter(logger, "query_handler"),
		handlerMetrics,
	).Register(api)
	handlers.NewSchemaHandler(
		deps.schemaService,
		newLoggerAdapter(logger, "schema_handler"),
		handlerMetrics,
	).Register(api)

	return r
}

func healthz(p pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthzTimeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "store": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "reachable"})
	}
}
