// Package errors provides the typed failure taxonomy of the query pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Failure codes. Every pipeline failure carries exactly one of these.
const (
	CodeEmptyOrOversizedInput = "EMPTY_OR_OVERSIZED_INPUT"
	CodeSuspiciousInput       = "SUSPICIOUS_INPUT_PATTERN"
	CodeModelUnavailable      = "MODEL_UNAVAILABLE"
	CodeModelTimeout          = "MODEL_TIMEOUT"
	CodeModelEmptyResponse    = "MODEL_EMPTY_RESPONSE"
	CodeNoJSONFound           = "NO_JSON_FOUND"
	CodeMalformedJSON         = "MALFORMED_JSON"
	CodeInvalidPlanShape      = "INVALID_PLAN_SHAPE"
	CodeInvalidFilterShape    = "INVALID_FILTER_SHAPE"
	CodeForbiddenOperator     = "FORBIDDEN_OPERATOR"
	CodeCollectionNotFound    = "COLLECTION_NOT_FOUND"
	CodeExecutionError        = "EXECUTION_ERROR"

	// Transport-level codes, never produced by the pipeline itself.
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
)

// Stage names the pipeline stage a failure originated from.
type Stage string

// Pipeline stages.
const (
	StageInput    Stage = "input"
	StagePrompt   Stage = "prompt"
	StageModel    Stage = "model"
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StageSanitize Stage = "sanitize"
	StageExecute  Stage = "execute"
	StageProject  Stage = "project"
)

// QueryError is a pipeline failure with code, stage, message and optional details.
type QueryError struct {
	Code    string                 `json:"code"`
	Stage   Stage                  `json:"stage,omitempty"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *QueryError) Is(target error) bool {
	t, ok := target.(*QueryError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails replaces the details of the error.
func (e *QueryError) WithDetails(details map[string]interface{}) *QueryError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *QueryError) WithDetail(key string, value interface{}) *QueryError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// AtStage sets the originating stage.
func (e *QueryError) AtStage(stage Stage) *QueryError {
	e.Stage = stage
	return e
}

// Sentinels usable with errors.Is.
var (
	ErrEmptyOrOversizedInput = &QueryError{Code: CodeEmptyOrOversizedInput, Message: "request text is empty or too long"}
	ErrSuspiciousInput       = &QueryError{Code: CodeSuspiciousInput, Message: "request text contains a suspicious pattern"}
	ErrModelUnavailable      = &QueryError{Code: CodeModelUnavailable, Message: "model is unavailable"}
	ErrModelTimeout          = &QueryError{Code: CodeModelTimeout, Message: "model did not respond in time"}
	ErrModelEmptyResponse    = &QueryError{Code: CodeModelEmptyResponse, Message: "model returned an empty response"}
	ErrNoJSONFound           = &QueryError{Code: CodeNoJSONFound, Message: "no JSON found in model response"}
	ErrMalformedJSON         = &QueryError{Code: CodeMalformedJSON, Message: "model response is not valid JSON"}
	ErrInvalidPlanShape      = &QueryError{Code: CodeInvalidPlanShape, Message: "query plan has an invalid shape"}
	ErrInvalidFilterShape    = &QueryError{Code: CodeInvalidFilterShape, Message: "query filter must be an object"}
	ErrForbiddenOperator     = &QueryError{Code: CodeForbiddenOperator, Message: "query uses a forbidden operator"}
	ErrCollectionNotFound    = &QueryError{Code: CodeCollectionNotFound, Message: "collection not found"}
	ErrExecutionError        = &QueryError{Code: CodeExecutionError, Message: "query execution failed"}
)

// New creates a new QueryError with the given code and message.
func New(code, message string) *QueryError {
	return &QueryError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new QueryError with a formatted message.
func Newf(code, format string, args ...interface{}) *QueryError {
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a QueryError.
func Wrap(err error, code, message string) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// ForbiddenOperator reports a forbidden key found at path in the filter tree.
func ForbiddenOperator(key, path string) *QueryError {
	return New(CodeForbiddenOperator, fmt.Sprintf("forbidden operator %q", key)).
		AtStage(StageSanitize).
		WithDetail("key", key).
		WithDetail("path", path)
}

// IsSecurity reports whether err is a security rejection.
func IsSecurity(err error) bool {
	switch GetCode(err) {
	case CodeForbiddenOperator, CodeSuspiciousInput:
		return true
	}
	return false
}

// IsModelFailure reports whether err originated at the model gateway.
func IsModelFailure(err error) bool {
	switch GetCode(err) {
	case CodeModelUnavailable, CodeModelTimeout, CodeModelEmptyResponse:
		return true
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return CodeInternal
}

// GetStage extracts the stage from an error, or "" if unknown.
func GetStage(err error) Stage {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Stage
	}
	return ""
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Message
	}
	return err.Error()
}

// GetDetails extracts the details map from an error, or nil.
func GetDetails(err error) map[string]interface{} {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Details
	}
	return nil
}
