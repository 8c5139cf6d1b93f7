// Package attrs reads slog-style key/value attribute slices.
package attrs

import (
	"fmt"
	"slices"
)

// ExtractString extracts a string value from a key-value attribute slice.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Returns empty string if the key is not found or the value is not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			if v, ok := attrs[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}

// ToMap flattens the pairs into string form, skipping the listed keys. Values
// that implement fmt.Stringer or are plain scalars are formatted with %v.
func ToMap(attrs []any, skip ...string) map[string]string {
	out := make(map[string]string)
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || slices.Contains(skip, k) {
			continue
		}
		switch v := attrs[i+1].(type) {
		case string:
			out[k] = v
		case fmt.Stringer:
			out[k] = v.String()
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
