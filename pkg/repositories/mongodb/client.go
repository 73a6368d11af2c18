// Package mongodb provides MongoDB-backed repository implementations.
package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/TFMV/nlq/pkg/errors"
)

// DefaultTimeout bounds each store call when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// Connect opens a client and verifies the server is reachable. The client
// is safe for concurrent use and is shared by every repository.
func Connect(ctx context.Context, uri string, connectTimeout time.Duration, logger zerolog.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExecutionError, "failed to create mongo client")
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, errors.CodeExecutionError, "failed to reach mongo")
	}

	logger.Info().
		Dur("connect_timeout", connectTimeout).
		Msg("Connected to MongoDB")
	return client, nil
}
