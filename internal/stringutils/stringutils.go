// Package stringutils holds the small string helpers phase dispatch
// uses to clean up values a sub-agent's YAML output hands back before
// they're used as lookup keys or checked for content.
package stringutils

import (
	"strings"
	"unicode"
)

// TrimAll strips every whitespace character out of s, including
// spaces, tabs, and newlines a sub-agent sometimes wraps a single-word
// field in (e.g. an "agent:" value quoted across a line break). Not
// safe to use on anything expected to contain multiple words.
func TrimAll(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// IsEmpty reports whether s is empty or contains only whitespace —
// used to tell an agent name that was never set apart from a YAML
// block that matched the fence pattern but carried no content.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
