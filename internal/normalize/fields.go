package normalize

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func hasAny(m map[string]any, keys ...string) bool {
	if m == nil {
		return false
	}
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// str returns the first key holding a non-empty scalar, rendered as a string.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case int, int64, float64, bool:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil {
			return i, true
		}
	}
	return 0, false
}

func intField(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if i, ok := toInt(v); ok {
				return i, true
			}
		}
	}
	return 0, false
}

func boolField(m map[string]any, key string) (bool, bool) {
	b, ok := m[key].(bool)
	return b, ok
}

func mapField(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func firstMap(m map[string]any, key string) map[string]any {
	list, _ := m[key].([]any)
	if len(list) == 0 {
		return nil
	}
	v, _ := list[0].(map[string]any)
	return v
}

func stringList(v any) []any {
	switch x := v.(type) {
	case []any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		out := []any{}
		for _, s := range strings.Split(x, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// canonicalUUID lower-cases and hyphenates a valid UUID. Other strings are
// kept; Xray maps arbitrary ids to UUIDv5 on its own.
func canonicalUUID(s string) string {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return u.String()
}

func fallbackTag(tag, server string, port int) string {
	if tag != "" {
		return tag
	}
	return net.JoinHostPort(server, strconv.Itoa(port))
}

// baseOutbound is the field set every extracted node carries.
func baseOutbound(typ, tag, server string, port int) map[string]any {
	return map[string]any{
		"type":        typ,
		"tag":         tag,
		"server":      server,
		"server_port": port,
	}
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func putMap(m map[string]any, key string, v map[string]any) {
	if len(v) > 0 {
		m[key] = v
	}
}
