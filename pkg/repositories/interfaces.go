// Package repositories defines interfaces for document store access.
package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TFMV/nlq/pkg/models"
)

// DocumentReader is the only store capability handed to the query
// pipeline. It has no write or command methods.
type DocumentReader interface {
	// Find returns at most limit raw documents of collection matching filter.
	Find(ctx context.Context, collection string, filter models.Value, limit int) ([]bson.Raw, error)
	// CollectionExists reports whether collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)
}

// MetadataReader lists collections and samples documents for introspection.
type MetadataReader interface {
	// ListCollections returns the names of non-system collections, sorted.
	ListCollections(ctx context.Context) ([]string, error)
	// Sample returns up to size documents of collection in natural order.
	Sample(ctx context.Context, collection string, size int) ([]bson.Raw, error)
	// Ping checks store reachability.
	Ping(ctx context.Context) error
}

// SeedWriter inserts fixture documents. It is only used by the seed
// command and is never given to the query pipeline.
type SeedWriter interface {
	// Count returns the number of documents in collection.
	Count(ctx context.Context, collection string) (int64, error)
	// Replace drops collection and inserts docs.
	Replace(ctx context.Context, collection string, docs []interface{}) (int, error)
	// Insert adds docs to collection.
	Insert(ctx context.Context, collection string, docs []interface{}) (int, error)
}
