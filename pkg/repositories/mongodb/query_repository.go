package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
	"github.com/TFMV/nlq/pkg/repositories"
)

// queryRepository implements repositories.DocumentReader for MongoDB.
type queryRepository struct {
	db      *mongo.Database
	timeout time.Duration
	logger  zerolog.Logger
}

// NewQueryRepository creates a new read-only MongoDB query repository.
// Every call is bounded by timeout.
func NewQueryRepository(db *mongo.Database, timeout time.Duration, logger zerolog.Logger) repositories.DocumentReader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &queryRepository{
		db:      db,
		timeout: timeout,
		logger:  logger,
	}
}

// Find runs a find with the given filter and limit.
func (r *queryRepository) Find(ctx context.Context, collection string, filter models.Value, limit int) ([]bson.Raw, error) {
	doc, err := ToBSONFilter(filter)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("collection", collection).
		Int("limit", limit).
		Int("filter_keys", len(doc)).
		Msg("Executing find")

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetMaxTime(r.timeout)

	cur, err := r.db.Collection(collection).Find(ctx, doc, opts)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeExecutionError, "find on %q failed", collection)
	}
	defer cur.Close(ctx)

	docs := make([]bson.Raw, 0, limit)
	for len(docs) < limit && cur.Next(ctx) {
		// cur.Current is only valid until the next call to Next.
		docs = append(docs, append(bson.Raw(nil), cur.Current...))
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.CodeExecutionError, "reading results from %q failed", collection)
	}
	return docs, nil
}

// CollectionExists reports whether collection exists in the database.
func (r *queryRepository) CollectionExists(ctx context.Context, collection string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return false, errors.Wrap(err, errors.CodeExecutionError, "failed to list collections")
	}
	return len(names) > 0, nil
}
