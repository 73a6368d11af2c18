package services

import (
	"fmt"
	"strings"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

// DefaultForbiddenOperators covers query meta-operators able to run code,
// join or redirect output, update operators, and command names.
var DefaultForbiddenOperators = []string{
	// Code execution, joins, output redirection
	"$where", "$function", "$accumulator", "$eval", "$lookup", "$graphLookup",
	"$merge", "$out", "$unionWith",

	// Update operators
	"$set", "$unset", "$inc", "$mul", "$rename", "$setOnInsert", "$currentDate",
	"$push", "$pull", "$pullAll", "$pop", "$addToSet", "$bit", "$isolated",
	"$min", "$max",

	// Write and admin commands
	"insert", "update", "delete", "remove", "drop", "dropDatabase", "dropIndexes",
	"create", "createIndexes", "renameCollection", "rename", "eval", "shutdown",
	"fsync", "repairDatabase", "replSetInitiate", "replSetReconfig",
	"replSetStepDown", "replSetFreeze", "replSetMaintenance", "replSetSyncFrom",
	"resync", "compact", "collMod", "reIndex", "convertToCapped",
	"cloneCollectionAsCapped", "findAndModify", "mapReduce", "killOp",
	"killCursors", "setParameter", "createUser", "dropUser", "grantRolesToUser",
	"logRotate",
}

// Sanitizer rejects filters that contain a forbidden key anywhere in the tree.
type Sanitizer struct {
	forbidden map[string]struct{}
}

// NewSanitizer builds the lookup set once. An empty list selects
// DefaultForbiddenOperators.
func NewSanitizer(operators []string) *Sanitizer {
	if len(operators) == 0 {
		operators = DefaultForbiddenOperators
	}
	forbidden := make(map[string]struct{}, len(operators))
	for _, op := range operators {
		op = strings.TrimSpace(op)
		if op == "" {
			continue
		}
		forbidden[strings.ToLower(op)] = struct{}{}
	}
	return &Sanitizer{forbidden: forbidden}
}

// IsForbidden reports whether key exactly matches a forbidden name, ignoring case.
func (s *Sanitizer) IsForbidden(key string) bool {
	_, ok := s.forbidden[strings.ToLower(key)]
	return ok
}

type frame struct {
	path  string
	value models.Value
}

// Check walks every key at every depth of the plan filter, including
// objects nested in arrays. Keys are visited in sorted pre-order so the
// reported key is deterministic when several are present.
func (s *Sanitizer) Check(plan *models.QueryPlan) error {
	if plan == nil {
		return errors.New(errors.CodeInvalidFilterShape, "plan is missing").AtStage(errors.StageSanitize)
	}
	if !plan.Filter.IsObject() {
		return errors.New(errors.CodeInvalidFilterShape, "plan query must be a JSON object").
			AtStage(errors.StageSanitize)
	}
	return s.CheckFilter("query", plan.Filter)
}

// CheckFilter walks value rooted at path.
func (s *Sanitizer) CheckFilter(path string, value models.Value) error {
	stack := []frame{{path: path, value: value}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch top.value.Kind() {
		case models.KindObject:
			keys := top.value.SortedKeys()
			for _, k := range keys {
				if s.IsForbidden(k) {
					return errors.ForbiddenOperator(k, top.path+"."+k)
				}
			}
			// Push in reverse so children pop in sorted order.
			for i := len(keys) - 1; i >= 0; i-- {
				child, _ := top.value.Get(keys[i])
				if child.IsObject() || child.IsArray() {
					stack = append(stack, frame{path: top.path + "." + keys[i], value: child})
				}
			}
		case models.KindArray:
			for i := top.value.Len() - 1; i >= 0; i-- {
				child := top.value.Index(i)
				if child.IsObject() || child.IsArray() {
					stack = append(stack, frame{path: fmt.Sprintf("%s[%d]", top.path, i), value: child})
				}
			}
		}
	}
	return nil
}
