// Package mapping applies declarative field-mapping rules that copy values
// from a flat settings tree into a target proxy configuration.
package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/pathexpr"
)

const (
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeString  = "string"
	TypeArray   = "array"

	TransformConditional = "conditional"
	TransformTemplate    = "template"

	FalseActionRemove = "remove"
)

// Rule maps the value at UserPath in the source tree to TargetPath in the
// target tree. Rules are read-only once loaded.
type Rule struct {
	UserPath    string `json:"userPath"`
	TargetPath  string `json:"targetPath"`
	Description string `json:"description,omitempty"`

	Type    string `json:"type,omitempty"`
	Default any    `json:"default,omitempty"`

	Transform string `json:"transform,omitempty"`
	Condition string `json:"condition,omitempty"`
	// ConditionDefault stands in for Condition when the source lacks it.
	ConditionDefault any    `json:"conditionDefault,omitempty"`
	TrueValue        any    `json:"trueValue,omitempty"`
	FalseValue       any    `json:"falseValue,omitempty"`
	FalseAction      string `json:"falseAction,omitempty"`
	Template         string `json:"template,omitempty"`

	ConflictStrategy string       `json:"conflictStrategy,omitempty"`
	Dependencies     []Dependency `json:"dependencies,omitempty"`
}

// Dependency is written after its rule wrote a value. It is skipped when
// OverrideIfExists is explicitly false and the target already holds a value.
type Dependency struct {
	TargetPath       string `json:"targetPath"`
	Value            any    `json:"value"`
	OverrideIfExists *bool  `json:"overrideIfExists,omitempty"`
}

// Definition is the mapping side-file: {mappings: [...]}.
type Definition struct {
	Mappings []Rule `json:"mappings"`
}

var (
	ErrUnknownType      = errors.New("unknown type")
	ErrUnknownTransform = errors.New("unknown transform")
	ErrUnknownStrategy  = errors.New("unknown conflictStrategy")
	ErrEmptyTemplate    = errors.New("template transform requires template")
)

func (r Rule) Validate() error {
	if strings.TrimSpace(r.UserPath) == "" || strings.TrimSpace(r.TargetPath) == "" {
		return errors.New("userPath and targetPath are required")
	}
	switch r.Type {
	case "", TypeNumber, TypeBoolean, TypeString, TypeArray:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	switch r.Transform {
	case "", TransformConditional:
	case TransformTemplate:
		if r.Template == "" {
			return ErrEmptyTemplate
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransform, r.Transform)
	}
	switch pathexpr.Strategy(r.ConflictStrategy) {
	case "", pathexpr.StrategyOverride, pathexpr.StrategyMerge:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, r.ConflictStrategy)
	}
	if r.FalseAction != "" && r.FalseAction != FalseActionRemove {
		return fmt.Errorf("unknown falseAction: %q", r.FalseAction)
	}
	for i, d := range r.Dependencies {
		if strings.TrimSpace(d.TargetPath) == "" {
			return fmt.Errorf("dependencies[%d]: targetPath is required", i)
		}
	}
	return nil
}

// RuleError reports one rule that could not be applied. Remaining rules are
// still applied.
type RuleError struct {
	AppError model.AppError
	Index    int
	Rule     Rule
	Cause    error
}

func (e *RuleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RuleError) Unwrap() error { return e.Cause }

func newRuleError(i int, r Rule, cause error) *RuleError {
	return &RuleError{
		AppError: model.AppError{
			Code:    "MAPPING_RULE_ERROR",
			Message: fmt.Sprintf("映射规则 #%d 应用失败：%s -> %s", i, r.UserPath, r.TargetPath),
			Stage:   "apply_mapping",
		},
		Index: i,
		Rule:  r,
		Cause: cause,
	}
}
