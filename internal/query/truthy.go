package query

import (
	"encoding/json"
	"strings"
)

// Truthy reports whether a flag value is set. It accepts true, "true" in
// any case, "1" and the number 1. Everything else, including nil, is false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		return s == "1" || strings.EqualFold(s, "true")
	case []string:
		return len(t) > 0 && Truthy(t[0])
	case int:
		return t == 1
	case int32:
		return t == 1
	case int64:
		return t == 1
	case float32:
		return t == 1
	case float64:
		return t == 1
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 1
	}
	return false
}
