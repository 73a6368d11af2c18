// Package services contains the query pipeline and its supporting services.
package services

import (
	"context"
	"time"

	"github.com/TFMV/nlq/pkg/models"
)

// QueryService turns untrusted requests into bounded read-only queries.
type QueryService interface {
	// TranslateAndExecute runs the full pipeline for a natural-language request.
	TranslateAndExecute(ctx context.Context, text string, schemaSummary string) (*models.QueryResult, error)
	// Translate runs the pipeline up to sanitization and returns the plan.
	Translate(ctx context.Context, text string, schemaSummary string) (*models.QueryPlan, error)
	// ExecutePlan validates, sanitizes and runs caller-supplied plan JSON.
	ExecutePlan(ctx context.Context, planText string) (*models.QueryResult, error)
}

// SchemaService introspects the document store.
type SchemaService interface {
	Summary(ctx context.Context) (*models.SchemaSummary, error)
	SummaryText(ctx context.Context) (string, error)
	ListCollections(ctx context.Context) ([]string, error)
	DescribeCollection(ctx context.Context, name string) (*models.CollectionInfo, error)
	SampleCollection(ctx context.Context, name string, size int) (*models.ResultSet, error)
	Invalidate()
}

// SeedService loads fixture data into the store.
type SeedService interface {
	Seed(ctx context.Context, force bool) (*models.SeedReport, error)
}

// ModelGateway sends a prompt to the language model and returns raw text.
type ModelGateway interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
