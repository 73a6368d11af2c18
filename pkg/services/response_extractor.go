package services

import (
	"regexp"
	"strings"

	"github.com/TFMV/nlq/pkg/errors"
)

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ResponseExtractor isolates the candidate JSON text inside free-form
// model output.
type ResponseExtractor struct{}

// NewResponseExtractor creates a response extractor.
func NewResponseExtractor() *ResponseExtractor {
	return &ResponseExtractor{}
}

// Extract applies, in order: the first fenced code block, the span from
// the first '{' to the last '}', and finally the whole trimmed text.
// It does not check that the result parses.
func (e *ResponseExtractor) Extract(raw string) (string, error) {
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		if inner := strings.TrimSpace(m[1]); inner != "" {
			return inner, nil
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New(errors.CodeNoJSONFound, "model response contains no JSON").
			AtStage(errors.StageExtract)
	}
	return trimmed, nil
}
