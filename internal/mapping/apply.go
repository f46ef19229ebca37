package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/pathexpr"
	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"
)

// Applier runs mapping rules. The zero value logs to the standard logger.
type Applier struct {
	Log logrus.FieldLogger
}

func (a *Applier) log() logrus.FieldLogger {
	if a == nil || a.Log == nil {
		return logrus.StandardLogger()
	}
	return a.Log
}

// Apply writes every rule into target in order and returns the updated
// target. A later rule sees what earlier rules wrote. A failing rule is
// reported and skipped; it never aborts the remaining rules.
func (a *Applier) Apply(source, target map[string]any, rules []Rule) (map[string]any, []*RuleError) {
	if target == nil {
		target = map[string]any{}
	}
	var errs []*RuleError
	for i, r := range rules {
		if err := a.applyRule(source, target, r); err != nil {
			re := newRuleError(i, r, err)
			a.log().WithFields(logrus.Fields{
				"rule":        i,
				"user_path":   r.UserPath,
				"target_path": r.TargetPath,
			}).WithError(err).Warn("mapping rule failed")
			errs = append(errs, re)
		}
	}
	return target, errs
}

func (a *Applier) applyRule(source, target map[string]any, r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	v, ok := pathexpr.Get(source, r.UserPath)
	if !ok {
		if r.Default == nil {
			return nil
		}
		v = deepcopy.Copy(r.Default)
	}
	v = coerce(v, r)

	targetPath := pathexpr.ReplaceVariables(r.TargetPath, source)
	if strings.Contains(targetPath, "{") && variableLeft(targetPath) {
		return fmt.Errorf("unresolved variable in target path %q", targetPath)
	}

	out, write, err := a.transform(source, target, targetPath, v, r)
	if err != nil || !write {
		return err
	}

	opt := pathexpr.SetOptions{ConflictStrategy: pathexpr.Strategy(r.ConflictStrategy)}
	if _, err := pathexpr.Set(target, targetPath, out, opt); err != nil {
		return err
	}
	return a.applyDependencies(source, target, r)
}

// transform returns the value to write and whether to write at all.
func (a *Applier) transform(source, target map[string]any, targetPath string, v any, r Rule) (any, bool, error) {
	switch r.Transform {
	case "":
		return v, true, nil

	case TransformConditional:
		cond := v
		if r.Condition != "" {
			c, ok := pathexpr.Get(source, r.Condition)
			if !ok {
				c = r.ConditionDefault
			}
			cond = c
		}
		if truthy(cond) {
			if r.TrueValue != nil {
				return deepcopy.Copy(r.TrueValue), true, nil
			}
			return v, true, nil
		}
		if r.FalseAction == FalseActionRemove {
			if _, _, err := pathexpr.Delete(target, targetPath); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		if r.FalseValue != nil {
			return deepcopy.Copy(r.FalseValue), true, nil
		}
		return nil, false, nil

	case TransformTemplate:
		s := strings.ReplaceAll(r.Template, "{value}", pathexpr.Stringify(v))
		return pathexpr.ReplaceVariables(s, source), true, nil
	}
	return nil, false, fmt.Errorf("%w: %q", ErrUnknownTransform, r.Transform)
}

func (a *Applier) applyDependencies(source, target map[string]any, r Rule) error {
	var errs []error
	for i, d := range r.Dependencies {
		p := pathexpr.ReplaceVariables(d.TargetPath, source)
		if d.OverrideIfExists != nil && !*d.OverrideIfExists {
			if _, exists := pathexpr.Get(target, p); exists {
				continue
			}
		}
		if _, err := pathexpr.Set(target, p, deepcopy.Copy(d.Value), pathexpr.SetOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("dependencies[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// variableLeft reports whether a {placeholder} outside a [field={...}] filter
// survived substitution. Filter variables are resolved against the target
// tree by the path engine itself.
func variableLeft(path string) bool {
	for _, tok := range pathexpr.Tokenize(path) {
		if tok.Kind == pathexpr.KindProperty && strings.ContainsAny(tok.Name, "{}") {
			return true
		}
	}
	return false
}
