package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/gin-gonic/gin"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/infrastructure/converter"
	"github.com/TFMV/nlq/pkg/models"
	"github.com/TFMV/nlq/pkg/services"
)

const (
	// maxBodyBytes bounds request bodies before any parsing.
	maxBodyBytes = 64 << 10

	// ArrowStreamContentType is returned for ?format=arrow.
	ArrowStreamContentType = "application/vnd.apache.arrow.stream"

	requestIDHeader = "X-Request-ID"
)

// QueryHandler serves the natural-language and plan endpoints.
type QueryHandler struct {
	queryService  services.QueryService
	schemaService services.SchemaService
	allocator     memory.Allocator
	logger        Logger
	metrics       MetricsCollector
}

// NewQueryHandler creates a new query handler. schemaService may be nil,
// in which case requests without a schema are translated without one.
func NewQueryHandler(
	queryService services.QueryService,
	schemaService services.SchemaService,
	allocator memory.Allocator,
	logger Logger,
	metrics MetricsCollector,
) *QueryHandler {
	return &QueryHandler{
		queryService:  queryService,
		schemaService: schemaService,
		allocator:     allocator,
		logger:        logger,
		metrics:       metrics,
	}
}

// Register mounts the query routes under r.
func (h *QueryHandler) Register(r gin.IRouter) {
	q := r.Group("/query")
	q.POST("/nlq", h.NaturalLanguage)
	q.POST("/ai", h.NaturalLanguage)
	q.POST("/translate", h.Translate)
	q.POST("/execute", h.Execute)
}

// NaturalLanguage translates and executes a natural-language request.
func (h *QueryHandler) NaturalLanguage(c *gin.Context) {
	timer := h.metrics.StartTimer("handler_nlq")
	defer timer.Stop()

	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	result, err := h.queryService.TranslateAndExecute(c.Request.Context(), req.Query, h.schemaSummary(c, req))
	if err != nil {
		h.fail(c, "nlq", err)
		return
	}

	h.respond(c, result, "Query executed successfully")
}

// Translate returns the validated plan without executing it.
func (h *QueryHandler) Translate(c *gin.Context) {
	timer := h.metrics.StartTimer("handler_translate")
	defer timer.Stop()

	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	plan, err := h.queryService.Translate(c.Request.Context(), req.Query, h.schemaSummary(c, req))
	if err != nil {
		h.fail(c, "translate", err)
		return
	}

	c.JSON(http.StatusOK, models.QueryResponse{
		Success:        true,
		Message:        "Query translated successfully",
		GeneratedQuery: plan,
	})
}

// Execute runs a caller-supplied plan. The request body is the plan JSON.
func (h *QueryHandler) Execute(c *gin.Context) {
	timer := h.metrics.StartTimer("handler_execute")
	defer timer.Stop()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		h.fail(c, "execute", errors.Wrap(err, errors.CodeEmptyOrOversizedInput, "request body is too large").
			AtStage(errors.StageInput))
		return
	}

	result, err := h.queryService.ExecutePlan(c.Request.Context(), string(body))
	if err != nil {
		h.fail(c, "execute", err)
		return
	}

	h.respond(c, result, "Plan executed successfully")
}

func (h *QueryHandler) bindRequest(c *gin.Context) (*models.QueryRequest, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "bind", errors.Wrap(err, errors.CodeEmptyOrOversizedInput, "request body must be a JSON object with a query field").
			AtStage(errors.StageInput))
		return nil, false
	}
	return &req, true
}

// schemaSummary prefers the caller's schema and falls back to introspection.
func (h *QueryHandler) schemaSummary(c *gin.Context, req *models.QueryRequest) string {
	if strings.TrimSpace(req.SchemaSummary) != "" || h.schemaService == nil {
		return req.SchemaSummary
	}
	summary, err := h.schemaService.SummaryText(c.Request.Context())
	if err != nil {
		h.logger.Warn("Schema summary unavailable, translating without it", "error", err)
		return ""
	}
	return summary
}

func (h *QueryHandler) respond(c *gin.Context, result *models.QueryResult, message string) {
	c.Header(requestIDHeader, result.RequestID)

	if c.Query("format") == "arrow" {
		c.Header("Content-Type", ArrowStreamContentType)
		c.Status(http.StatusOK)
		if err := converter.WriteArrowStream(c.Writer, h.allocator, result.Results.Records()); err != nil {
			h.logger.Error("Failed to write arrow stream", "error", err, "request_id", result.RequestID)
			h.metrics.IncrementCounter("handler_arrow_errors")
		}
		return
	}

	c.JSON(http.StatusOK, models.QueryResponse{
		Success:         true,
		Message:         message,
		RequestID:       result.RequestID,
		Data:            result.Results,
		Count:           result.Results.Len(),
		GeneratedQuery:  result.Plan,
		ExecutionTimeMs: result.ExecutionTime.Milliseconds(),
	})
}

func (h *QueryHandler) fail(c *gin.Context, operation string, err error) {
	code := errors.GetCode(err)
	h.metrics.IncrementCounter("handler_errors", "operation", operation, "code", code)
	if StatusForCode(code) >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err, "operation", operation, "code", code)
	}
	AbortWithError(c, err)
}
