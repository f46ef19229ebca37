package pathexpr

// Delete removes the value at path. It reports whether anything was removed.
// A terminal condition token removes every matching array element.
func Delete(root any, path string) (any, bool, error) {
	toks := Tokenize(path)
	if len(toks) == 0 {
		return root, false, &PathError{Op: "delete", Path: path, Err: ErrEmptyPath}
	}
	if toks[len(toks)-1].Kind == KindWildcard {
		return root, false, &PathError{Op: "delete", Path: path, Err: ErrTerminalWildcard}
	}
	out, removed := remove(root, root, toks)
	return out, removed, nil
}

func remove(root, cur any, toks []Token) (any, bool) {
	tok, rest := toks[0], toks[1:]
	last := len(rest) == 0

	switch tok.Kind {
	case KindProperty:
		m, ok := cur.(map[string]any)
		if !ok {
			return cur, false
		}
		child, ok := m[tok.Name]
		if !ok {
			return cur, false
		}
		if last {
			delete(m, tok.Name)
			return m, true
		}
		next, removed := remove(root, child, rest)
		m[tok.Name] = next
		return m, removed

	case KindIndex:
		arr, ok := cur.([]any)
		if !ok || tok.Index >= len(arr) {
			return cur, false
		}
		if last {
			return append(arr[:tok.Index:tok.Index], arr[tok.Index+1:]...), true
		}
		next, removed := remove(root, arr[tok.Index], rest)
		arr[tok.Index] = next
		return arr, removed

	case KindWildcard:
		arr, ok := cur.([]any)
		if !ok {
			return cur, false
		}
		anyRemoved := false
		for k := range arr {
			next, removed := remove(root, arr[k], rest)
			arr[k] = next
			anyRemoved = anyRemoved || removed
		}
		return arr, anyRemoved

	case KindCondition:
		arr, ok := cur.([]any)
		if !ok {
			return cur, false
		}
		want, ok := conditionValue(root, tok)
		if !ok {
			return cur, false
		}
		idx := matchIndexes(arr, tok, want)
		if len(idx) == 0 {
			return cur, false
		}
		if last {
			drop := make(map[int]struct{}, len(idx))
			for _, k := range idx {
				drop[k] = struct{}{}
			}
			kept := make([]any, 0, len(arr)-len(idx))
			for k, el := range arr {
				if _, ok := drop[k]; !ok {
					kept = append(kept, el)
				}
			}
			return kept, true
		}
		anyRemoved := false
		for _, k := range idx {
			next, removed := remove(root, arr[k], rest)
			arr[k] = next
			anyRemoved = anyRemoved || removed
		}
		return arr, anyRemoved
	}
	return cur, false
}
