package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/TFMV/nlq/pkg/errors"
)

// DefaultMaxInputLength is the maximum request length in characters.
const DefaultMaxInputLength = 5000

var whitespaceRun = regexp.MustCompile(`\s+`)

// InputScreener normalizes request text and rejects text that is empty,
// too long, or carries query-injection fragments.
type InputScreener struct {
	maxLength int

	// Injection patterns
	suspiciousPatterns []*regexp.Regexp
}

// NewInputScreener creates a screener. A non-positive maxLength selects the default.
func NewInputScreener(maxLength int) *InputScreener {
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}
	return &InputScreener{
		maxLength: maxLength,
		suspiciousPatterns: []*regexp.Regexp{
			// Server-side code execution and cross-collection operators used as keys
			regexp.MustCompile(`(?i)\$(?:where|function|accumulator|eval|lookup|graphLookup|merge|out|unionWith)\s*["']?\s*:`),
			// Shell-style mutations: db.users.remove(...)
			regexp.MustCompile(`(?i)\bdb\s*\.\s*[A-Za-z_][\w-]*\s*\.\s*(?:insert\w*|update\w*|remove|delete\w*|drop\w*|save|rename\w*|replace\w*|findAndModify|findOneAnd\w+|bulkWrite|createIndex\w*)\s*\(`),
			// Shell-style database commands: db.dropDatabase()
			regexp.MustCompile(`(?i)\bdb\s*\.\s*(?:dropDatabase|eval|runCommand|adminCommand|shutdownServer|createCollection|createUser|dropUser|fsyncLock)\s*\(`),
		},
	}
}

// Screen returns the normalized request text or a typed failure.
func (s *InputScreener) Screen(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errors.New(errors.CodeEmptyOrOversizedInput, "request text is empty").
			AtStage(errors.StageInput)
	}
	if n := utf8.RuneCountInString(trimmed); n > s.maxLength {
		return "", errors.Newf(errors.CodeEmptyOrOversizedInput,
			"request text is too long: %d characters (max %d)", n, s.maxLength).
			AtStage(errors.StageInput).
			WithDetail("length", n).
			WithDetail("max_length", s.maxLength)
	}

	normalized := whitespaceRun.ReplaceAllString(trimmed, " ")
	normalized = strings.TrimSpace(strings.TrimRight(normalized, "?"))
	if normalized == "" {
		return "", errors.New(errors.CodeEmptyOrOversizedInput, "request text is empty").
			AtStage(errors.StageInput)
	}

	for _, p := range s.suspiciousPatterns {
		if p.MatchString(normalized) {
			return "", errors.New(errors.CodeSuspiciousInput, "request text contains a suspicious pattern").
				AtStage(errors.StageInput)
		}
	}

	return normalized, nil
}
