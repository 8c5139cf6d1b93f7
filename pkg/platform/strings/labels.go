// Package strings holds text helpers for operator-entered values.
package strings

import (
	"strings"
	"unicode"
)

// UniqueLabels trims each label, collapses inner runs of whitespace and
// drops blanks and case-insensitive repeats. The first spelling wins and
// order is preserved.
func UniqueLabels(labels []string) []string {
	if labels == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.Join(strings.FieldsFunc(label, unicode.IsSpace), " ")
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, label)
	}
	return out
}
