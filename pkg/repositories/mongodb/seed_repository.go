package mongodb

import (
	"context"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/repositories"
)

// seedRepository implements repositories.SeedWriter for MongoDB.
type seedRepository struct {
	db     *mongo.Database
	logger zerolog.Logger
}

// NewSeedRepository creates a write-capable repository for fixtures.
func NewSeedRepository(db *mongo.Database, logger zerolog.Logger) repositories.SeedWriter {
	return &seedRepository{
		db:     db,
		logger: logger,
	}
}

// Count returns the number of documents in collection.
func (r *seedRepository) Count(ctx context.Context, collection string) (int64, error) {
	n, err := r.db.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeExecutionError, "failed to count %q", collection)
	}
	return n, nil
}

// Replace drops collection and inserts docs.
func (r *seedRepository) Replace(ctx context.Context, collection string, docs []interface{}) (int, error) {
	if err := r.db.Collection(collection).Drop(ctx); err != nil {
		return 0, errors.Wrapf(err, errors.CodeExecutionError, "failed to drop %q", collection)
	}
	r.logger.Debug().Str("collection", collection).Msg("Dropped collection")
	return r.Insert(ctx, collection, docs)
}

// Insert adds docs to collection.
func (r *seedRepository) Insert(ctx context.Context, collection string, docs []interface{}) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := r.db.Collection(collection).InsertMany(ctx, docs)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeExecutionError, "failed to insert into %q", collection)
	}
	r.logger.Debug().
		Str("collection", collection).
		Int("inserted", len(res.InsertedIDs)).
		Msg("Inserted documents")
	return len(res.InsertedIDs), nil
}
