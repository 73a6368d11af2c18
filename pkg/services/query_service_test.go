package services

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/infrastructure/converter"
	"github.com/TFMV/nlq/pkg/models"
)

type findCall struct {
	collection string
	filter     models.Value
	limit      int
}

type queryServiceFixture struct {
	service  QueryService
	gateway  *mockGateway
	finds    []findCall
	counters *counterRecorder
	warnings [][]interface{}
}

func setupTestQueryService(t *testing.T, modelOutput string, modelErr error) *queryServiceFixture {
	t.Helper()
	f := &queryServiceFixture{counters: newCounterRecorder()}

	f.gateway = &mockGateway{generateFunc: func(ctx context.Context, prompt string) (string, error) {
		return modelOutput, modelErr
	}}
	reader := &mockDocumentReader{
		findFunc: func(ctx context.Context, collection string, filter models.Value, limit int) ([]bson.Raw, error) {
			f.finds = append(f.finds, findCall{collection: collection, filter: filter, limit: limit})
			return rawDocs(2), nil
		},
	}
	logger := &mockLogger{warnFunc: func(msg string, keysAndValues ...interface{}) {
		f.warnings = append(f.warnings, keysAndValues)
	}}
	metrics := f.counters.collector()

	validator, err := NewPlanValidator(false, logger)
	require.NoError(t, err)
	executor := NewPlanExecutor(reader, converter.NewBSONConverter(0, zerolog.Nop()), false, logger, metrics)

	f.service = NewQueryService(f.gateway, validator, NewSanitizer(nil), executor, 0, logger, metrics)
	return f
}

func TestQueryService_TranslateAndExecute(t *testing.T) {
	modelOutput := "```json\n" +
		`{"collection":"employees","query":{"name":{"$regex":"john","$options":"i"}},"limit":10}` +
		"\n```"
	f := setupTestQueryService(t, modelOutput, nil)

	result, err := f.service.TranslateAndExecute(context.Background(), "Find all employees named John?", "Schema: default")
	require.NoError(t, err)

	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, "employees", result.Plan.Collection)
	assert.Equal(t, 10, result.Plan.Limit)
	assert.Equal(t, 2, result.Results.Len())

	require.Len(t, f.finds, 1)
	assert.Equal(t, "employees", f.finds[0].collection)
	assert.Equal(t, 10, f.finds[0].limit)
	assert.True(t, f.finds[0].filter.Equal(mustParse(t, `{"name":{"$regex":"john","$options":"i"}}`)))
	assert.Equal(t, 1, f.counters.count("successful_queries"))
}

func TestQueryService_PromptCarriesRequest(t *testing.T) {
	f := setupTestQueryService(t, `{"collection":"x","query":{}}`, nil)
	var prompt string
	f.gateway.generateFunc = func(ctx context.Context, p string) (string, error) {
		prompt = p
		return `{"collection":"x","query":{}}`, nil
	}

	_, err := f.service.TranslateAndExecute(context.Background(), "  list   projects?  ", "Schema: default\nTables:\n- projects")
	require.NoError(t, err)
	assert.Contains(t, prompt, "USER REQUEST:\nlist projects\n")
	assert.Contains(t, prompt, "- projects")
}

func TestQueryService_Failures(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		modelOutput string
		modelErr    error
		wantCode    string
		wantModel   bool
		wantSecure  bool
	}{
		{
			name:      "empty input",
			input:     "   ",
			wantCode:  errors.CodeEmptyOrOversizedInput,
			wantModel: false,
		},
		{
			name:       "suspicious input never reaches model",
			input:      "find users then db.users.drop()",
			wantCode:   errors.CodeSuspiciousInput,
			wantModel:  false,
			wantSecure: true,
		},
		{
			name:      "model timeout",
			input:     "list employees",
			modelErr:  errors.New(errors.CodeModelTimeout, "timed out").AtStage(errors.StageModel),
			wantCode:  errors.CodeModelTimeout,
			wantModel: true,
		},
		{
			name:        "prose answer",
			input:       "list employees",
			modelOutput: "I am not able to answer.",
			wantCode:    errors.CodeMalformedJSON,
			wantModel:   true,
		},
		{
			name:        "filter not an object",
			input:       "list employees",
			modelOutput: `{"collection":"employees","query":[]}`,
			wantCode:    errors.CodeInvalidFilterShape,
			wantModel:   true,
		},
		{
			name:        "forbidden operator",
			input:       "list users",
			modelOutput: `{"collection":"users","query":{"$where":"this.a==1"}}`,
			wantCode:    errors.CodeForbiddenOperator,
			wantModel:   true,
			wantSecure:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestQueryService(t, tt.modelOutput, tt.modelErr)

			result, err := f.service.TranslateAndExecute(context.Background(), tt.input, "")
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
			assert.Empty(t, f.finds, "store must not be queried after a failure")
			assert.Equal(t, tt.wantModel, f.gateway.calls > 0)
			assert.Equal(t, 1, f.counters.count("pipeline_failures"))

			if tt.wantSecure {
				assert.Equal(t, 1, f.counters.count("security_rejections_total"))
				require.Len(t, f.warnings, 1)
				assert.Equal(t, []interface{}{"security", true}, f.warnings[0][:2])
			} else {
				assert.Zero(t, f.counters.count("security_rejections_total"))
			}
		})
	}
}

func TestQueryService_ForbiddenOperatorDetails(t *testing.T) {
	f := setupTestQueryService(t, `{"collection":"users","query":{"$where":"this.a==1"}}`, nil)

	_, err := f.service.TranslateAndExecute(context.Background(), "list users", "")
	require.Error(t, err)
	assert.Equal(t, "$where", errors.GetDetails(err)["key"])
	assert.Equal(t, "query.$where", errors.GetDetails(err)["path"])

	require.Len(t, f.warnings, 1)
	joined := strings.Join(toStrings(f.warnings[0]), " ")
	assert.Contains(t, joined, "query.$where")
	assert.NotContains(t, joined, "this.a==1", "raw model output stays out of security logs")
}

func TestQueryService_Translate(t *testing.T) {
	f := setupTestQueryService(t, `Plan: {"collection":"orders","query":{"$or":[{"status":"open"},{"total":{"$gt":100}}]},"limit":5000}`, nil)

	plan, err := f.service.Translate(context.Background(), "open or large orders", "")
	require.NoError(t, err)
	assert.Equal(t, "orders", plan.Collection)
	assert.Equal(t, 100, plan.Limit)
	assert.Empty(t, f.finds)
}

func TestQueryService_ExecutePlan(t *testing.T) {
	t.Run("runs without the model", func(t *testing.T) {
		f := setupTestQueryService(t, "", nil)

		result, err := f.service.ExecutePlan(context.Background(), `{"collection":"projects","query":{"budget":{"$gt":1000}},"limit":0}`)
		require.NoError(t, err)
		assert.Zero(t, f.gateway.calls)
		assert.Equal(t, 10, result.Plan.Limit)
		require.Len(t, f.finds, 1)
		assert.Equal(t, 10, f.finds[0].limit)
		assert.NotEmpty(t, result.RequestID)
	})

	t.Run("sanitizes caller plans", func(t *testing.T) {
		f := setupTestQueryService(t, "", nil)

		_, err := f.service.ExecutePlan(context.Background(), `{"collection":"projects","query":{"$or":[{"a":1},{"$function":{}}]}}`)
		require.Error(t, err)
		assert.Equal(t, errors.CodeForbiddenOperator, errors.GetCode(err))
		assert.Equal(t, "query.$or[1].$function", errors.GetDetails(err)["path"])
		assert.Empty(t, f.finds)
	})

	t.Run("empty plan text", func(t *testing.T) {
		f := setupTestQueryService(t, "", nil)

		_, err := f.service.ExecutePlan(context.Background(), "  ")
		assert.Equal(t, errors.CodeNoJSONFound, errors.GetCode(err))
	})
}

func toStrings(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
