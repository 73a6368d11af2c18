package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

// StatusForCode maps a failure code to an HTTP status.
func StatusForCode(code string) int {
	switch code {
	case errors.CodeEmptyOrOversizedInput:
		return http.StatusBadRequest
	case errors.CodeSuspiciousInput, errors.CodeForbiddenOperator:
		return http.StatusForbidden
	case errors.CodeNoJSONFound, errors.CodeMalformedJSON, errors.CodeInvalidPlanShape, errors.CodeInvalidFilterShape:
		return http.StatusUnprocessableEntity
	case errors.CodeCollectionNotFound:
		return http.StatusNotFound
	case errors.CodeModelUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeModelTimeout:
		return http.StatusGatewayTimeout
	case errors.CodeModelEmptyResponse:
		return http.StatusBadGateway
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// NewErrorResponse builds the error body for err. Details are only kept
// for client-side failures; server-side failures get a generic message.
func NewErrorResponse(err error, path string) models.ErrorResponse {
	code := errors.GetCode(err)
	status := StatusForCode(code)

	resp := models.ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Code:      code,
		Stage:     string(errors.GetStage(err)),
		Message:   errors.GetMessage(err),
		Path:      path,
	}
	if status >= http.StatusInternalServerError {
		if code == errors.CodeInternal {
			resp.Message = "internal server error"
		}
		return resp
	}
	resp.Details = errors.GetDetails(err)
	return resp
}

// AbortWithError writes the error body and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	resp := NewErrorResponse(err, c.Request.URL.Path)
	_ = c.Error(err)
	c.AbortWithStatusJSON(resp.Status, resp)
}
