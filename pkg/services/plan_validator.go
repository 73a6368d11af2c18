package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/xeipuuv/gojsonschema"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

// CollectionNamePattern is the allow pattern for plan collection names.
const CollectionNamePattern = `^[A-Za-z_][A-Za-z0-9_-]*(\.[A-Za-z0-9_-]+)*$`

const planSchema = `{
	"type": "object",
	"required": ["collection", "query"],
	"properties": {
		"collection": {
			"type": "string",
			"minLength": 1,
			"maxLength": 120,
			"pattern": %q
		},
		"query": {"type": "object"}
	}
}`

// PlanValidator parses extracted text into a QueryPlan, checks its shape
// and normalizes the limit.
type PlanValidator struct {
	schema     *gojsonschema.Schema
	repairJSON bool
	logger     Logger
}

// NewPlanValidator compiles the plan schema. When repairJSON is set, text
// that fails to parse is passed through a JSON repair step once.
func NewPlanValidator(repairJSON bool, logger Logger) (*PlanValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(fmt.Sprintf(planSchema, CollectionNamePattern)))
	if err != nil {
		return nil, fmt.Errorf("failed to compile plan schema: %w", err)
	}
	return &PlanValidator{
		schema:     schema,
		repairJSON: repairJSON,
		logger:     logger,
	}, nil
}

// Validate returns a plan whose limit is within [1, MaxLimit].
func (v *PlanValidator) Validate(text string) (*models.QueryPlan, error) {
	root, err := v.parse(text)
	if err != nil {
		return nil, err
	}

	if err := v.checkShape(root); err != nil {
		return nil, err
	}

	collectionValue, _ := root.Get("collection")
	collection, _ := collectionValue.AsString()
	if strings.HasPrefix(strings.ToLower(collection), "system.") {
		return nil, errors.New(errors.CodeInvalidPlanShape, "system collections cannot be queried").
			AtStage(errors.StageValidate).
			WithDetail("field", "collection")
	}

	filter, _ := root.Get("query")
	limitValue, hasLimit := root.Get("limit")

	return &models.QueryPlan{
		Collection: collection,
		Filter:     filter,
		Limit:      NormalizeLimit(limitValue, hasLimit),
	}, nil
}

func (v *PlanValidator) parse(text string) (models.Value, error) {
	root, err := models.ParseValue([]byte(text))
	if err == nil {
		return root, nil
	}
	if !v.repairJSON {
		return models.Null(), errors.Wrap(err, errors.CodeMalformedJSON, "plan is not valid JSON").
			AtStage(errors.StageValidate)
	}

	repaired, repairErr := jsonrepair.JSONRepair(text)
	if repairErr != nil {
		return models.Null(), errors.Wrap(err, errors.CodeMalformedJSON, "plan is not valid JSON").
			AtStage(errors.StageValidate)
	}
	root, err = models.ParseValue([]byte(repaired))
	if err != nil {
		return models.Null(), errors.Wrap(err, errors.CodeMalformedJSON, "plan is not valid JSON after repair").
			AtStage(errors.StageValidate)
	}
	if v.logger != nil {
		v.logger.Debug("Repaired malformed plan JSON", "original_length", len(text), "repaired_length", len(repaired))
	}
	return root, nil
}

func (v *PlanValidator) checkShape(root models.Value) error {
	if !root.IsObject() {
		return errors.Newf(errors.CodeInvalidPlanShape, "plan must be a JSON object, got %s", root.Kind()).
			AtStage(errors.StageValidate)
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(root))
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidPlanShape, "plan could not be checked").
			AtStage(errors.StageValidate)
	}
	if result.Valid() {
		return nil
	}

	var planErr, filterErr error
	for _, re := range result.Errors() {
		field := re.Field()
		if re.Type() == "required" {
			if p, ok := re.Details()["property"].(string); ok {
				field = p
			}
		}
		if field == "query" {
			if filterErr == nil {
				filterErr = errors.New(errors.CodeInvalidFilterShape, "plan query must be a JSON object").
					AtStage(errors.StageValidate).
					WithDetail("field", "query").
					WithDetail("reason", re.Description())
			}
			continue
		}
		if planErr == nil {
			planErr = errors.Newf(errors.CodeInvalidPlanShape, "plan field %q is invalid", field).
				AtStage(errors.StageValidate).
				WithDetail("field", field).
				WithDetail("reason", re.Description())
		}
	}
	if planErr != nil {
		return planErr
	}
	return filterErr
}

// NormalizeLimit maps a raw limit onto [1, MaxLimit]. Absent, non-numeric,
// and non-positive values select DefaultLimit; fractions are truncated.
func NormalizeLimit(raw models.Value, present bool) int {
	if !present {
		return models.DefaultLimit
	}
	f, ok := raw.AsNumber()
	if !ok || math.IsNaN(f) {
		return models.DefaultLimit
	}
	f = math.Trunc(f)
	switch {
	case f <= 0:
		return models.DefaultLimit
	case f > models.MaxLimit:
		return models.MaxLimit
	}
	return int(f)
}
