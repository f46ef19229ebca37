package pathexpr

// Get resolves path against root. The boolean is false when the path does not
// resolve ("undefined"); a present JSON null resolves to (nil, true).
func Get(root any, path string) (any, bool) {
	return GetTokens(root, Tokenize(path))
}

// GetTokens is Get over an already tokenized path.
func GetTokens(root any, toks []Token) (any, bool) {
	return walk(root, root, toks)
}

func walk(root, cur any, toks []Token) (any, bool) {
	for i, tok := range toks {
		last := i == len(toks)-1
		switch tok.Kind {
		case KindProperty:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok := m[tok.Name]
			if !ok {
				return nil, false
			}
			cur = v
		case KindIndex:
			arr, ok := cur.([]any)
			if !ok || tok.Index >= len(arr) {
				return nil, false
			}
			cur = arr[tok.Index]
		case KindWildcard:
			arr, ok := cur.([]any)
			if !ok {
				return nil, false
			}
			if last {
				return arr, true
			}
			return mapRest(root, arr, toks[i+1:]), true
		case KindCondition:
			arr, ok := cur.([]any)
			if !ok {
				return nil, false
			}
			want, ok := conditionValue(root, tok)
			if !ok {
				return nil, false
			}
			idx := matchIndexes(arr, tok, want)
			if len(idx) == 0 {
				return nil, false
			}
			matched := make([]any, 0, len(idx))
			for _, k := range idx {
				matched = append(matched, arr[k])
			}
			if last {
				return matched, true
			}
			if len(matched) == 1 {
				cur = matched[0]
				continue
			}
			return mapRest(root, matched, toks[i+1:]), true
		default:
			return nil, false
		}
	}
	return cur, true
}

// mapRest resolves rest against every element. Unresolved elements stay as
// nil so positions line up with the input.
func mapRest(root any, arr []any, rest []Token) []any {
	out := make([]any, len(arr))
	for k, el := range arr {
		v, _ := walk(root, el, rest)
		out[k] = v
	}
	return out
}

// conditionValue returns the value a condition token compares against. An
// unresolvable variable matches nothing.
func conditionValue(root any, tok Token) (any, bool) {
	if !tok.IsVariable {
		return tok.Value, true
	}
	return walk(root, root, Tokenize(tok.Value))
}

func matchIndexes(arr []any, tok Token, want any) []int {
	var idx []int
	for k, el := range arr {
		if tok.MatchAll {
			idx = append(idx, k)
			continue
		}
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		v, ok := m[tok.Field]
		if ok && strictEqual(v, want) {
			idx = append(idx, k)
		}
	}
	return idx
}

// strictEqual compares scalars by kind and value. Numbers compare by value
// across Go numeric types (JSON decoders yield float64, YAML yields int).
// Containers never compare equal.
func strictEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
