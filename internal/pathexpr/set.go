package pathexpr

import (
	"errors"
	"fmt"
	"maps"
)

type Strategy string

const (
	StrategyOverride Strategy = "override"
	StrategyMerge    Strategy = "merge"
)

type SetOptions struct {
	// ConflictStrategy applies when a terminal condition token matches an
	// existing element: override replaces it, merge shallow-merges object
	// fields into it. A terminal property or index is always overwritten.
	ConflictStrategy Strategy
}

var (
	ErrEmptyPath        = errors.New("empty path")
	ErrTerminalWildcard = errors.New("path must not end with [*]")
	ErrNotContainer     = errors.New("value is not a container")
)

type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// Set writes value at path, creating intermediate objects and arrays as
// needed. root is mutated in place; the returned tree must be used when root
// was nil or is itself an array that grew.
//
// On error the returned tree is root. A terminal [*] is rejected before any
// mutation; a non-container met mid-walk may leave created intermediates.
func Set(root any, path string, value any, opt SetOptions) (any, error) {
	toks := Tokenize(path)
	if len(toks) == 0 {
		return root, &PathError{Op: "set", Path: path, Err: ErrEmptyPath}
	}
	if toks[len(toks)-1].Kind == KindWildcard {
		return root, &PathError{Op: "set", Path: path, Err: ErrTerminalWildcard}
	}
	if root == nil {
		root = newContainer(toks[0])
	}
	s := &setter{root: root, value: value, opt: opt}
	out, err := s.assign(root, toks)
	if err != nil {
		return root, &PathError{Op: "set", Path: path, Err: err}
	}
	return out, nil
}

type setter struct {
	root  any
	value any
	opt   SetOptions
}

func (s *setter) assign(cur any, toks []Token) (any, error) {
	tok, rest := toks[0], toks[1:]
	last := len(rest) == 0

	switch tok.Kind {
	case KindProperty:
		m, ok := cur.(map[string]any)
		if cur == nil {
			m, ok = map[string]any{}, true
		}
		if !ok {
			return cur, fmt.Errorf("%w: cannot set %q on %T", ErrNotContainer, tok.Name, cur)
		}
		if last {
			m[tok.Name] = s.value
			return m, nil
		}
		child := m[tok.Name]
		if child == nil {
			child = newContainer(rest[0])
		}
		next, err := s.assign(child, rest)
		if err != nil {
			return cur, err
		}
		m[tok.Name] = next
		return m, nil

	case KindIndex:
		arr, ok := cur.([]any)
		if cur == nil {
			arr, ok = []any{}, true
		}
		if !ok {
			return cur, fmt.Errorf("%w: cannot index %T", ErrNotContainer, cur)
		}
		for len(arr) < tok.Index {
			arr = append(arr, nil)
		}
		if last {
			if tok.Index < len(arr) {
				arr[tok.Index] = s.value
			} else {
				arr = append(arr, s.value)
			}
			return arr, nil
		}
		if tok.Index == len(arr) {
			arr = append(arr, nil)
		}
		child := arr[tok.Index]
		if child == nil {
			child = newContainer(rest[0])
		}
		next, err := s.assign(child, rest)
		if err != nil {
			return cur, err
		}
		arr[tok.Index] = next
		return arr, nil

	case KindWildcard:
		// Only reachable as a non-terminal token.
		if cur == nil {
			return cur, nil
		}
		arr, ok := cur.([]any)
		if !ok {
			return cur, fmt.Errorf("%w: [*] on %T", ErrNotContainer, cur)
		}
		for k := range arr {
			next, err := s.assign(arr[k], rest)
			if err != nil {
				return cur, err
			}
			arr[k] = next
		}
		return arr, nil

	case KindCondition:
		arr, ok := cur.([]any)
		if cur == nil {
			arr, ok = []any{}, true
		}
		if !ok {
			return cur, fmt.Errorf("%w: [%s=...] on %T", ErrNotContainer, tok.Field, cur)
		}
		want, ok := conditionValue(s.root, tok)
		if !ok {
			return cur, nil
		}
		idx := matchIndexes(arr, tok, want)
		if len(idx) == 0 {
			if tok.MatchAll {
				return arr, nil
			}
			arr = append(arr, map[string]any{tok.Field: want})
			idx = []int{len(arr) - 1}
		}
		for _, k := range idx {
			if last {
				arr[k] = s.replaceMatched(arr[k], tok, want)
				continue
			}
			next, err := s.assign(arr[k], rest)
			if err != nil {
				return cur, err
			}
			arr[k] = next
		}
		return arr, nil
	}
	return cur, nil
}

func (s *setter) replaceMatched(existing any, tok Token, want any) any {
	vm, isMap := s.value.(map[string]any)
	if !isMap {
		return s.value
	}
	if em, ok := existing.(map[string]any); ok && s.opt.ConflictStrategy == StrategyMerge {
		for k, v := range vm {
			em[k] = v
		}
		return em
	}
	out := maps.Clone(vm)
	if _, has := out[tok.Field]; !has && !tok.MatchAll {
		out[tok.Field] = want
	}
	return out
}
