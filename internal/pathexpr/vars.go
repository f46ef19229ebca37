package pathexpr

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var variablePattern = regexp.MustCompile(`\{([^{}]+)\}`)

// ReplaceVariables substitutes every {dotted.path} in path with the value it
// resolves to in data. Unresolved placeholders are left as-is so the failure
// stays visible in the resulting path.
func ReplaceVariables(path string, data any) string {
	if !strings.Contains(path, "{") {
		return path
	}
	return variablePattern.ReplaceAllStringFunc(path, func(m string) string {
		v, ok := Get(data, m[1:len(m)-1])
		if !ok {
			return m
		}
		return Stringify(v)
	})
}

// Stringify renders a tree value the way a JavaScript template literal would
// for scalars; containers are rendered as compact JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	if f, ok := toFloat(v); ok {
		return formatFloat(f)
	}
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
