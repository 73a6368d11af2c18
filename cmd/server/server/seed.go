package server

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/TFMV/nlq/cmd/server/config"
	"github.com/TFMV/nlq/pkg/infrastructure/metrics"
	"github.com/TFMV/nlq/pkg/models"
	"github.com/TFMV/nlq/pkg/repositories/mongodb"
	"github.com/TFMV/nlq/pkg/services"
)

// Seed connects to the configured store and writes the fixture
// collections. The same seed always yields the same documents apart from
// timestamps.
func Seed(ctx context.Context, cfg *config.Config, seed int64, force bool, logger zerolog.Logger, collector metrics.Collector) (*models.SeedReport, error) {
	client, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout,
		logger.With().Str("component", "mongo").Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Error disconnecting from mongo")
		}
	}()

	writer := mongodb.NewSeedRepository(client.Database(cfg.Mongo.Database),
		logger.With().Str("component", "seed_repository").Logger())

	svc := services.NewSeedService(
		writer,
		rand.New(rand.NewSource(seed)),
		nil,
		newLoggerAdapter(logger, "seed_service"),
		&serviceMetricsAdapter{collector: collector},
	)
	return svc.Seed(ctx, force)
}
