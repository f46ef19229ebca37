// Package pathexpr resolves and mutates dotted paths over JSON-like trees
// (map[string]any / []any), e.g. "inbounds.[type=mixed].listen_port".
package pathexpr

import (
	"strconv"
	"strings"
)

type Kind int

const (
	KindProperty Kind = iota
	KindIndex
	KindWildcard
	KindCondition
)

// Token is one step of a path. Only the fields of its Kind are meaningful.
type Token struct {
	Kind Kind

	Name  string // KindProperty
	Index int    // KindIndex

	// KindCondition: [Field=Value]. When IsVariable, Value is the dotted path
	// inside {...} and is resolved against the root tree at evaluation time.
	Field      string
	Value      string
	IsVariable bool
	MatchAll   bool // [Field=*]
}

func (t Token) String() string {
	switch t.Kind {
	case KindProperty:
		return t.Name
	case KindIndex:
		return "[" + strconv.Itoa(t.Index) + "]"
	case KindWildcard:
		return "[*]"
	case KindCondition:
		switch {
		case t.MatchAll:
			return "[" + t.Field + "=*]"
		case t.IsVariable:
			return "[" + t.Field + "={" + t.Value + "}]"
		default:
			return "[" + t.Field + "=" + t.Value + "]"
		}
	default:
		return ""
	}
}

// Tokenize splits a path into tokens. Fragments it cannot classify (e.g.
// "[a b]" or an unterminated bracket) produce no token.
func Tokenize(path string) []Token {
	toks := make([]Token, 0, strings.Count(path, ".")+1)
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.', ']':
			i++
		case '[':
			end := closingBracket(path, i)
			if end < 0 {
				return toks
			}
			if tok, ok := parseBracket(path[i+1 : end]); ok {
				toks = append(toks, tok)
			}
			i = end + 1
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' && path[j] != ']' {
				j++
			}
			toks = append(toks, Token{Kind: KindProperty, Name: path[i:j]})
			i = j
		}
	}
	return toks
}

// closingBracket returns the index of the ']' closing the '[' at open,
// skipping brackets nested inside {...} variable references.
func closingBracket(s string, open int) int {
	depth := 0
	for k := open + 1; k < len(s); k++ {
		switch s[k] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ']':
			if depth == 0 {
				return k
			}
		}
	}
	return -1
}

func parseBracket(inner string) (Token, bool) {
	if inner == "*" {
		return Token{Kind: KindWildcard}, true
	}
	if isDigits(inner) {
		n, err := strconv.Atoi(inner)
		if err != nil {
			return Token{}, false
		}
		return Token{Kind: KindIndex, Index: n}, true
	}

	field, value, ok := strings.Cut(inner, "=")
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)
	if !ok || field == "" || value == "" {
		return Token{}, false
	}
	tok := Token{Kind: KindCondition, Field: field, Value: value}
	switch {
	case value == "*":
		tok.MatchAll = true
	case len(value) > 2 && value[0] == '{' && value[len(value)-1] == '}':
		tok.IsVariable = true
		tok.Value = value[1 : len(value)-1]
	}
	return tok, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isArrayStep reports whether tok addresses into an array, which decides the
// container type created for a missing intermediate value.
func isArrayStep(tok Token) bool {
	return tok.Kind == KindIndex || tok.Kind == KindCondition || tok.Kind == KindWildcard
}

func newContainer(next Token) any {
	if isArrayStep(next) {
		return []any{}
	}
	return map[string]any{}
}
