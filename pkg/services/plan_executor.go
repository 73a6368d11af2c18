package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
	"github.com/TFMV/nlq/pkg/repositories"
)

// Projector converts raw store documents into tree values.
type Projector interface {
	ProjectAll(docs []bson.Raw) ([]models.Value, error)
}

// PlanExecutor runs a sanitized plan against a read-only document reader.
type PlanExecutor struct {
	reader            repositories.DocumentReader
	projector         Projector
	strictCollections bool
	logger            Logger
	metrics           MetricsCollector
}

// NewPlanExecutor creates a plan executor. With strictCollections set, a
// missing collection fails with COLLECTION_NOT_FOUND instead of yielding
// an empty result set.
func NewPlanExecutor(
	reader repositories.DocumentReader,
	projector Projector,
	strictCollections bool,
	logger Logger,
	metrics MetricsCollector,
) *PlanExecutor {
	return &PlanExecutor{
		reader:            reader,
		projector:         projector,
		strictCollections: strictCollections,
		logger:            logger,
		metrics:           metrics,
	}
}

// EffectiveLimit bounds a plan limit by the hard result ceiling.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return models.DefaultLimit
	}
	if limit > models.ResultCeiling {
		return models.ResultCeiling
	}
	return limit
}

// Execute reads at most min(plan.Limit, ResultCeiling) records and projects them.
func (e *PlanExecutor) Execute(ctx context.Context, plan *models.QueryPlan) (*models.ResultSet, error) {
	timer := e.metrics.StartTimer("plan_execution")
	defer timer.Stop()

	limit := EffectiveLimit(plan.Limit)

	if e.strictCollections {
		exists, err := e.reader.CollectionExists(ctx, plan.Collection)
		if err != nil {
			e.metrics.IncrementCounter("execution_errors")
			return nil, errors.Wrap(err, errors.CodeExecutionError, "failed to check collection").
				AtStage(errors.StageExecute)
		}
		if !exists {
			return nil, errors.Newf(errors.CodeCollectionNotFound, "collection %q not found", plan.Collection).
				AtStage(errors.StageExecute).
				WithDetail("collection", plan.Collection)
		}
	}

	start := time.Now()
	docs, err := e.reader.Find(ctx, plan.Collection, plan.Filter, limit)
	elapsed := time.Since(start)
	if err != nil {
		e.metrics.IncrementCounter("execution_errors")
		e.logger.Error("Find failed",
			"error", err,
			"collection", plan.Collection,
			"execution_time", elapsed)
		return nil, errors.Wrap(err, errors.CodeExecutionError, "query execution failed").
			AtStage(errors.StageExecute)
	}

	if len(docs) > limit {
		e.logger.Warn("Store returned more documents than requested",
			"collection", plan.Collection,
			"limit", limit,
			"returned", len(docs))
		docs = docs[:limit]
	}

	records, err := e.projector.ProjectAll(docs)
	if err != nil {
		e.metrics.IncrementCounter("projection_errors")
		return nil, err
	}

	e.metrics.RecordHistogram("result_rows", float64(len(records)))
	e.logger.Debug("Plan executed",
		"collection", plan.Collection,
		"limit", limit,
		"rows", len(records),
		"execution_time", elapsed)

	return models.NewResultSet(records), nil
}
