package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/TFMV/nlq/pkg/infrastructure/metrics"
)

// HealthService is the gRPC health service name reported alongside the
// overall ("") status.
const HealthService = "nlq.Query"

const (
	defaultHealthInterval = 10 * time.Second
	healthPingTimeout     = 5 * time.Second
)

// healthChecker mirrors store reachability into a gRPC health server.
type healthChecker struct {
	server   *health.Server
	pinger   pinger
	interval time.Duration
	logger   zerolog.Logger
	metrics  metrics.Collector
	serving  bool
}

func newHealthChecker(p pinger, interval time.Duration, logger zerolog.Logger, collector metrics.Collector) *healthChecker {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	h := &healthChecker{
		server:   health.NewServer(),
		pinger:   p,
		interval: interval,
		logger:   logger,
		metrics:  collector,
	}
	h.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// run checks once immediately and then every interval until ctx is done.
func (h *healthChecker) run(ctx context.Context) {
	h.check(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

// check pings the store and updates the serving status. Transitions are
// logged; steady state is not.
func (h *healthChecker) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	err := h.pinger.Ping(pingCtx)
	if ctx.Err() != nil {
		return
	}

	up := err == nil
	if up {
		h.metrics.RecordGauge("store_up", 1)
	} else {
		h.metrics.RecordGauge("store_up", 0)
	}

	if up == h.serving {
		return
	}
	h.serving = up
	if up {
		h.logger.Info().Msg("Store reachable, serving")
		h.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
		return
	}
	h.logger.Warn().Err(err).Msg("Store unreachable, not serving")
	h.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

func (h *healthChecker) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(HealthService, status)
}

// shutdown marks every service NOT_SERVING and ignores later updates.
func (h *healthChecker) shutdown() {
	h.server.Shutdown()
}
