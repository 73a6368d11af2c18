package mongodb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/repositories"
)

// metadataRepository implements repositories.MetadataReader for MongoDB.
type metadataRepository struct {
	db      *mongo.Database
	timeout time.Duration
	logger  zerolog.Logger
}

// NewMetadataRepository creates a new MongoDB metadata repository.
func NewMetadataRepository(db *mongo.Database, timeout time.Duration, logger zerolog.Logger) repositories.MetadataReader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &metadataRepository{
		db:      db,
		timeout: timeout,
		logger:  logger,
	}
}

// ListCollections returns user collection names in sorted order.
func (r *metadataRepository) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExecutionError, "failed to list collections")
	}

	out := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, "system.") {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)

	r.logger.Debug().Int("count", len(out)).Msg("Listed collections")
	return out, nil
}

// Sample returns up to size documents in natural order.
func (r *metadataRepository) Sample(ctx context.Context, collection string, size int) ([]bson.Raw, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cur, err := r.db.Collection(collection).Find(ctx, bson.D{}, options.Find().SetLimit(int64(size)))
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeExecutionError, "failed to sample %q", collection)
	}
	defer cur.Close(ctx)

	docs := make([]bson.Raw, 0, size)
	for cur.Next(ctx) {
		docs = append(docs, append(bson.Raw(nil), cur.Current...))
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.CodeExecutionError, "failed to read sample of %q", collection)
	}
	return docs, nil
}

// Ping checks that the primary is reachable.
func (r *metadataRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.Client().Ping(ctx, readpref.Primary())
}
