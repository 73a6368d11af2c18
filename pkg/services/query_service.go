package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

// queryService implements QueryService by running the translation pipeline.
type queryService struct {
	screener  *InputScreener
	builder   *PromptBuilder
	gateway   ModelGateway
	extractor *ResponseExtractor
	validator *PlanValidator
	sanitizer *Sanitizer
	executor  *PlanExecutor
	logger    Logger
	metrics   MetricsCollector
}

// NewQueryService creates a new query service.
func NewQueryService(
	gateway ModelGateway,
	validator *PlanValidator,
	sanitizer *Sanitizer,
	executor *PlanExecutor,
	maxInputLength int,
	logger Logger,
	metrics MetricsCollector,
) QueryService {
	return &queryService{
		screener:  NewInputScreener(maxInputLength),
		builder:   NewPromptBuilder(),
		gateway:   gateway,
		extractor: NewResponseExtractor(),
		validator: validator,
		sanitizer: sanitizer,
		executor:  executor,
		logger:    logger,
		metrics:   metrics,
	}
}

// TranslateAndExecute runs every stage for a natural-language request.
func (s *queryService) TranslateAndExecute(ctx context.Context, text string, schemaSummary string) (*models.QueryResult, error) {
	timer := s.metrics.StartTimer("query_pipeline")
	defer timer.Stop()

	requestID := uuid.NewString()
	s.logger.Debug("Translating request", "request_id", requestID, "length", len(text))

	start := time.Now()
	plan, err := s.translate(ctx, requestID, text, schemaSummary)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, requestID, plan, start)
}

// Translate runs the stages up to sanitization.
func (s *queryService) Translate(ctx context.Context, text string, schemaSummary string) (*models.QueryPlan, error) {
	timer := s.metrics.StartTimer("query_translate")
	defer timer.Stop()

	requestID := uuid.NewString()
	plan, err := s.translate(ctx, requestID, text, schemaSummary)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter("plans_translated")
	s.logger.Info("Plan translated",
		"request_id", requestID,
		"collection", plan.Collection,
		"limit", plan.Limit)
	return plan, nil
}

// ExecutePlan skips the model and runs caller-supplied plan text through
// extraction, validation, sanitization and execution.
func (s *queryService) ExecutePlan(ctx context.Context, planText string) (*models.QueryResult, error) {
	timer := s.metrics.StartTimer("plan_pipeline")
	defer timer.Stop()

	requestID := uuid.NewString()
	start := time.Now()

	plan, err := s.planFromText(planText)
	if err != nil {
		return nil, s.fail(requestID, err)
	}

	return s.execute(ctx, requestID, plan, start)
}

func (s *queryService) translate(ctx context.Context, requestID, text, schemaSummary string) (*models.QueryPlan, error) {
	screened, err := s.screener.Screen(text)
	if err != nil {
		return nil, s.fail(requestID, err)
	}

	prompt := s.builder.Build(screened, schemaSummary)

	modelTimer := s.metrics.StartTimer("model_generate")
	raw, err := s.gateway.Generate(ctx, prompt)
	modelTime := modelTimer.Stop()
	if err != nil {
		return nil, s.fail(requestID, err)
	}
	s.logger.Debug("Model responded",
		"request_id", requestID,
		"response", raw,
		"model_time", modelTime)

	plan, err := s.planFromText(raw)
	if err != nil {
		return nil, s.fail(requestID, err)
	}
	return plan, nil
}

// planFromText covers Extracted, Validated and Sanitized.
func (s *queryService) planFromText(raw string) (*models.QueryPlan, error) {
	candidate, err := s.extractor.Extract(raw)
	if err != nil {
		return nil, err
	}

	plan, err := s.validator.Validate(candidate)
	if err != nil {
		return nil, err
	}

	if err := s.sanitizer.Check(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *queryService) execute(ctx context.Context, requestID string, plan *models.QueryPlan, start time.Time) (*models.QueryResult, error) {
	results, err := s.executor.Execute(ctx, plan)
	if err != nil {
		return nil, s.fail(requestID, err)
	}

	executionTime := time.Since(start)
	s.metrics.IncrementCounter("successful_queries")
	s.metrics.RecordHistogram("query_execution_time", executionTime.Seconds())

	s.logger.Info("Query executed successfully",
		"request_id", requestID,
		"collection", plan.Collection,
		"limit", plan.Limit,
		"rows", results.Len(),
		"execution_time", executionTime)

	return &models.QueryResult{
		RequestID:     requestID,
		Plan:          plan,
		Results:       results,
		ExecutionTime: executionTime,
	}, nil
}

// fail records a terminal failure and returns it unchanged.
func (s *queryService) fail(requestID string, err error) error {
	code := errors.GetCode(err)
	stage := string(errors.GetStage(err))

	s.metrics.IncrementCounter("pipeline_failures", "code", code, "stage", stage)

	if errors.IsSecurity(err) {
		s.metrics.IncrementCounter("security_rejections_total", "code", code)
		keysAndValues := []interface{}{
			"security", true,
			"request_id", requestID,
			"code", code,
			"stage", stage,
		}
		for _, k := range []string{"key", "path"} {
			if v, ok := errors.GetDetails(err)[k]; ok {
				keysAndValues = append(keysAndValues, k, v)
			}
		}
		s.logger.Warn("Request rejected", keysAndValues...)
		return err
	}

	if errors.IsModelFailure(err) || code == errors.CodeExecutionError {
		s.logger.Error("Request failed",
			"error", err,
			"request_id", requestID,
			"code", code,
			"stage", stage)
		return err
	}

	s.logger.Info("Request rejected",
		"request_id", requestID,
		"code", code,
		"stage", stage,
		"message", errors.GetMessage(err))
	return err
}
