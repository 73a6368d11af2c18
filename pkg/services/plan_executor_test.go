package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/infrastructure/converter"
	"github.com/TFMV/nlq/pkg/models"
)

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, models.DefaultLimit, EffectiveLimit(0))
	assert.Equal(t, models.DefaultLimit, EffectiveLimit(-1))
	assert.Equal(t, 1, EffectiveLimit(1))
	assert.Equal(t, 100, EffectiveLimit(100))
	assert.Equal(t, models.ResultCeiling, EffectiveLimit(models.ResultCeiling))
	assert.Equal(t, models.ResultCeiling, EffectiveLimit(50000))
}

func TestPlanExecutor_Execute(t *testing.T) {
	filter := models.Object(models.Field{Key: "dept", Value: models.String("ENG")})

	t.Run("passes plan to reader and projects", func(t *testing.T) {
		var gotCollection string
		var gotFilter models.Value
		var gotLimit int
		reader := &mockDocumentReader{
			findFunc: func(ctx context.Context, collection string, f models.Value, limit int) ([]bson.Raw, error) {
				gotCollection, gotFilter, gotLimit = collection, f, limit
				return rawDocs(3), nil
			},
			existsFunc: func(ctx context.Context, collection string) (bool, error) {
				t.Fatal("existence is only checked in strict mode")
				return false, nil
			},
		}
		exec := NewPlanExecutor(reader, converter.NewBSONConverter(0, zerolog.Nop()), false, &mockLogger{}, &mockMetricsCollector{})

		rs, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "employees", Filter: filter, Limit: 5})
		require.NoError(t, err)

		assert.Equal(t, "employees", gotCollection)
		assert.True(t, gotFilter.Equal(filter))
		assert.Equal(t, 5, gotLimit)
		require.Equal(t, 3, rs.Len())
		for i := 0; i < 3; i++ {
			n, _ := rs.At(i).Get("n")
			got, _ := n.AsInt()
			assert.Equal(t, int64(i), got)
		}
	})

	t.Run("truncates oversized reader output", func(t *testing.T) {
		reader := &mockDocumentReader{
			findFunc: func(ctx context.Context, collection string, f models.Value, limit int) ([]bson.Raw, error) {
				return rawDocs(limit + 7), nil
			},
		}
		exec := NewPlanExecutor(reader, &mockProjector{}, false, &mockLogger{}, &mockMetricsCollector{})

		rs, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "c", Filter: filter, Limit: 4})
		require.NoError(t, err)
		assert.Equal(t, 4, rs.Len())
	})

	t.Run("ceiling applies to large limits", func(t *testing.T) {
		var gotLimit int
		reader := &mockDocumentReader{
			findFunc: func(ctx context.Context, collection string, f models.Value, limit int) ([]bson.Raw, error) {
				gotLimit = limit
				return rawDocs(models.ResultCeiling + 1), nil
			},
		}
		exec := NewPlanExecutor(reader, &mockProjector{}, false, &mockLogger{}, &mockMetricsCollector{})

		rs, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "c", Filter: filter, Limit: 5000})
		require.NoError(t, err)
		assert.Equal(t, models.ResultCeiling, gotLimit)
		assert.Equal(t, models.ResultCeiling, rs.Len())
	})

	t.Run("missing collection is empty by default", func(t *testing.T) {
		exec := NewPlanExecutor(&mockDocumentReader{}, &mockProjector{}, false, &mockLogger{}, &mockMetricsCollector{})

		rs, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "nope", Filter: filter, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 0, rs.Len())
	})

	t.Run("reader failure", func(t *testing.T) {
		counters := newCounterRecorder()
		reader := &mockDocumentReader{
			findFunc: func(ctx context.Context, collection string, f models.Value, limit int) ([]bson.Raw, error) {
				return nil, assert.AnError
			},
		}
		exec := NewPlanExecutor(reader, &mockProjector{}, false, &mockLogger{}, counters.collector())

		rs, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "c", Filter: filter, Limit: 10})
		require.Error(t, err)
		assert.Nil(t, rs)
		assert.Equal(t, errors.CodeExecutionError, errors.GetCode(err))
		assert.Equal(t, errors.StageExecute, errors.GetStage(err))
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, counters.count("execution_errors"))
	})

	t.Run("projection failure yields no partial result", func(t *testing.T) {
		counters := newCounterRecorder()
		reader := &mockDocumentReader{
			findFunc: func(ctx context.Context, collection string, f models.Value, limit int) ([]bson.Raw, error) {
				return rawDocs(2), nil
			},
		}
		projector := &mockProjector{projectAllFunc: func(docs []bson.Raw) ([]models.Value, error) {
			return nil, errors.New(errors.CodeExecutionError, "bad document").AtStage(errors.StageProject)
		}}
		exec := NewPlanExecutor(reader, projector, false, &mockLogger{}, counters.collector())

		rs, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "c", Filter: filter, Limit: 10})
		require.Error(t, err)
		assert.Nil(t, rs)
		assert.Equal(t, errors.StageProject, errors.GetStage(err))
		assert.Equal(t, 1, counters.count("projection_errors"))
	})
}

func TestPlanExecutor_StrictCollections(t *testing.T) {
	filter := models.Object()

	t.Run("missing collection fails", func(t *testing.T) {
		reader := &mockDocumentReader{
			existsFunc: func(ctx context.Context, collection string) (bool, error) { return false, nil },
			findFunc: func(ctx context.Context, collection string, f models.Value, limit int) ([]bson.Raw, error) {
				t.Fatal("find must not run for a missing collection")
				return nil, nil
			},
		}
		exec := NewPlanExecutor(reader, &mockProjector{}, true, &mockLogger{}, &mockMetricsCollector{})

		_, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "ghosts", Filter: filter, Limit: 10})
		require.Error(t, err)
		assert.Equal(t, errors.CodeCollectionNotFound, errors.GetCode(err))
		assert.Equal(t, "ghosts", errors.GetDetails(err)["collection"])
	})

	t.Run("existence check failure", func(t *testing.T) {
		reader := &mockDocumentReader{
			existsFunc: func(ctx context.Context, collection string) (bool, error) { return false, assert.AnError },
		}
		exec := NewPlanExecutor(reader, &mockProjector{}, true, &mockLogger{}, &mockMetricsCollector{})

		_, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "c", Filter: filter, Limit: 10})
		assert.Equal(t, errors.CodeExecutionError, errors.GetCode(err))
	})

	t.Run("existing collection runs", func(t *testing.T) {
		reader := &mockDocumentReader{
			findFunc: func(ctx context.Context, collection string, f models.Value, limit int) ([]bson.Raw, error) {
				return rawDocs(1), nil
			},
		}
		exec := NewPlanExecutor(reader, &mockProjector{}, true, &mockLogger{}, &mockMetricsCollector{})

		rs, err := exec.Execute(context.Background(), &models.QueryPlan{Collection: "c", Filter: filter, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, rs.Len())
	})
}
