package services

import (
	"strings"
)

const promptRules = `You are a query planner for a read-only MongoDB database.
Translate the user's request into a single find query against ONE collection.

RULES:
1. Reply with one JSON object of the form {"collection": "...", "query": {...}, "limit": N}.
2. "collection" must be one of the collections listed in the schema below.
3. "query" is a MongoDB filter object. Use {} to match every document.
4. Operators you may use:
   - exact match: {"field": "value"}
   - comparisons: {"field": {"$gt": 100}}, {"field": {"$lte": 5}}
   - membership: {"field": {"$in": ["a", "b"]}}
   - text search: {"field": {"$regex": "term", "$options": "i"}}
   - combinations: {"$and": [{...}, {...}]}, {"$or": [{...}, {...}]}
5. Always include "limit". Use 10 unless the user asks for a different number. Never exceed 100.
6. Never produce anything that inserts, updates, deletes or drops data, and never use
   $where, $function, $accumulator, $lookup, $merge or $out.
`

const promptResponseFormat = `RESPONSE FORMAT:
{"collection": "collection_name", "query": {"field": "value"}, "limit": 10}

Respond with ONLY the JSON object. No explanations and no markdown.`

// PromptBuilder composes the model instruction from fixed rules, the
// schema summary and the user's request.
type PromptBuilder struct {
	rules string
}

// NewPromptBuilder creates a prompt builder with the default rule text.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{rules: promptRules}
}

// Build returns the full prompt. The request is embedded verbatim as data
// after the rules so it cannot precede or replace them.
func (b *PromptBuilder) Build(request, schemaSummary string) string {
	schema := strings.TrimSpace(schemaSummary)
	if schema == "" {
		schema = "(no schema information available)"
	}

	var sb strings.Builder
	sb.Grow(len(b.rules) + len(schema) + len(request) + len(promptResponseFormat) + 64)
	sb.WriteString(b.rules)
	sb.WriteString("\nDATABASE SCHEMA:\n")
	sb.WriteString(schema)
	sb.WriteString("\n\nUSER REQUEST:\n")
	sb.WriteString(request)
	sb.WriteString("\n\n")
	sb.WriteString(promptResponseFormat)
	return sb.String()
}
