package mapping

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/model"
	"gopkg.in/yaml.v3"
)

type DefinitionError struct {
	AppError model.AppError
	Cause    error
}

func (e *DefinitionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *DefinitionError) Unwrap() error { return e.Cause }

// Parse reads a mapping definition written as YAML or JSON.
func Parse(sourceURL, content string) (*Definition, error) {
	dec := yaml.NewDecoder(strings.NewReader(content))
	var tree any
	if err := dec.Decode(&tree); err != nil && !errors.Is(err, io.EOF) {
		return nil, &DefinitionError{
			AppError: model.AppError{
				Code:    "MAPPING_PARSE_ERROR",
				Message: "映射定义解析失败",
				Stage:   "load_mapping",
				URL:     sourceURL,
				Snippet: truncateSnippet(content, 200),
			},
			Cause: err,
		}
	}
	def, err := FromTree(tree)
	if err != nil {
		var de *DefinitionError
		if errors.As(err, &de) {
			de.AppError.URL = sourceURL
		}
		return nil, err
	}
	return def, nil
}

// FromTree builds a Definition from an already decoded document. Rule keys are
// accepted in camelCase or snake_case. An empty document yields no rules.
func FromTree(tree any) (*Definition, error) {
	if tree == nil {
		return &Definition{}, nil
	}
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, invalidDefinition("映射定义必须是对象", fmt.Errorf("got %T", tree))
	}
	raw, ok := root["mappings"]
	if !ok || raw == nil {
		return &Definition{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, invalidDefinition("mappings 必须是数组", fmt.Errorf("got %T", raw))
	}
	def := &Definition{Mappings: make([]Rule, 0, len(list))}
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalidDefinition(fmt.Sprintf("mappings[%d] 必须是对象", i), fmt.Errorf("got %T", item))
		}
		r, err := decodeRule(m)
		if err == nil {
			err = r.Validate()
		}
		if err != nil {
			return nil, invalidDefinition(fmt.Sprintf("mappings[%d] 不合法", i), err)
		}
		def.Mappings = append(def.Mappings, r)
	}
	return def, nil
}

func invalidDefinition(msg string, cause error) *DefinitionError {
	return &DefinitionError{
		AppError: model.AppError{
			Code:    "MAPPING_VALIDATE_ERROR",
			Message: msg,
			Stage:   "load_mapping",
		},
		Cause: cause,
	}
}

// normKey folds "user_path" and "userPath" to the same key.
func normKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

func decodeRule(m map[string]any) (Rule, error) {
	var r Rule
	for k, v := range m {
		var err error
		switch normKey(k) {
		case "userpath":
			r.UserPath, err = asString(k, v)
		case "targetpath":
			r.TargetPath, err = asString(k, v)
		case "description":
			r.Description, err = asString(k, v)
		case "type":
			r.Type, err = asString(k, v)
		case "default":
			r.Default = v
		case "transform":
			r.Transform, err = asString(k, v)
		case "condition":
			r.Condition, err = asString(k, v)
		case "conditiondefault":
			r.ConditionDefault = v
		case "truevalue":
			r.TrueValue = v
		case "falsevalue":
			r.FalseValue = v
		case "falseaction":
			r.FalseAction, err = asString(k, v)
		case "template":
			r.Template, err = asString(k, v)
		case "conflictstrategy":
			r.ConflictStrategy, err = asString(k, v)
		case "dependencies":
			r.Dependencies, err = decodeDependencies(v)
		default:
			err = fmt.Errorf("unknown field %q", k)
		}
		if err != nil {
			return Rule{}, err
		}
	}
	return r, nil
}

func decodeDependencies(v any) ([]Dependency, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("dependencies must be an array, got %T", v)
	}
	out := make([]Dependency, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("dependencies[%d] must be an object, got %T", i, item)
		}
		var d Dependency
		for k, v := range m {
			switch normKey(k) {
			case "targetpath":
				s, err := asString(k, v)
				if err != nil {
					return nil, err
				}
				d.TargetPath = s
			case "value":
				d.Value = v
			case "overrideifexists":
				b, ok := v.(bool)
				if !ok {
					return nil, fmt.Errorf("dependencies[%d].%s must be a boolean", i, k)
				}
				d.OverrideIfExists = &b
			default:
				return nil, fmt.Errorf("dependencies[%d]: unknown field %q", i, k)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func asString(key string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
