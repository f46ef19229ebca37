package mapping

import (
	"math"
	"strconv"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/pathexpr"
)

// coerce converts v to the rule type with JavaScript conversion semantics.
// A number that does not parse falls back to the rule default, then 0.
func coerce(v any, r Rule) any {
	switch r.Type {
	case TypeNumber:
		f := toNumber(v)
		if math.IsNaN(f) {
			if r.Default != nil {
				return r.Default
			}
			return 0
		}
		return numberValue(f)
	case TypeBoolean:
		return truthy(v)
	case TypeString:
		return pathexpr.Stringify(v)
	case TypeArray:
		switch x := v.(type) {
		case []any:
			return x
		case nil:
			return []any{}
		default:
			return []any{x}
		}
	}
	return v
}

func toNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil && !isRangeErr(err) {
			return math.NaN()
		}
		return f
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case uint64:
		return float64(x)
	case uint32:
		return float64(x)
	}
	return math.NaN()
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// numberValue keeps integral values as int so they encode without a
// fractional part in both JSON and YAML output.
func numberValue(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	case uint64:
		return x != 0
	case uint32:
		return x != 0
	}
	return true
}
