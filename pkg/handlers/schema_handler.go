package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/services"
)

// defaultSampleSize is used when ?size is absent.
const defaultSampleSize = 5

// SchemaHandler serves schema introspection endpoints.
type SchemaHandler struct {
	schemaService services.SchemaService
	logger        Logger
	metrics       MetricsCollector
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(schemaService services.SchemaService, logger Logger, metrics MetricsCollector) *SchemaHandler {
	return &SchemaHandler{
		schemaService: schemaService,
		logger:        logger,
		metrics:       metrics,
	}
}

// Register mounts the schema routes under r.
func (h *SchemaHandler) Register(r gin.IRouter) {
	s := r.Group("/schema")
	s.GET("", h.Summary)
	s.GET("/tables", h.ListTables)
	s.GET("/tables/:name", h.DescribeTable)
	s.GET("/tables/:name/sample", h.SampleTable)
}

// Summary returns the plain-text schema summary used in prompts.
func (h *SchemaHandler) Summary(c *gin.Context) {
	text, err := h.schemaService.SummaryText(c.Request.Context())
	if err != nil {
		h.fail(c, "summary", err)
		return
	}
	c.String(http.StatusOK, text)
}

// ListTables returns the collection names.
func (h *SchemaHandler) ListTables(c *gin.Context) {
	names, err := h.schemaService.ListCollections(c.Request.Context())
	if err != nil {
		h.fail(c, "list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": names, "count": len(names)})
}

// DescribeTable returns the sampled fields of one collection.
func (h *SchemaHandler) DescribeTable(c *gin.Context) {
	info, err := h.schemaService.DescribeCollection(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, "describe", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// SampleTable returns projected sample documents of one collection.
func (h *SchemaHandler) SampleTable(c *gin.Context) {
	size := defaultSampleSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(c, "sample", errors.Newf(errors.CodeEmptyOrOversizedInput, "size must be an integer, got %q", raw).
				AtStage(errors.StageInput))
			return
		}
		size = n
	}

	name := c.Param("name")
	rs, err := h.schemaService.SampleCollection(c.Request.Context(), name, size)
	if err != nil {
		h.fail(c, "sample", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": name, "count": rs.Len(), "samples": rs})
}

func (h *SchemaHandler) fail(c *gin.Context, operation string, err error) {
	code := errors.GetCode(err)
	h.metrics.IncrementCounter("handler_errors", "operation", "schema_"+operation, "code", code)
	if StatusForCode(code) >= http.StatusInternalServerError {
		h.logger.Error("Schema request failed", "error", err, "operation", operation)
	}
	AbortWithError(c, err)
}
