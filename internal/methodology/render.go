package methodology

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render replaces {{var}} placeholders in tmpl with values drawn from
// vars. Unknown placeholders are left intact, per spec: the variable
// map is small and enumerated (methodology, phase, plus per-call
// overrides like concept), not a general template language.
func Render(tmpl string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		if v, ok := vars[sub[1]]; ok {
			return v
		}
		return match
	})
}

// HasUnresolvedPlaceholders reports whether text still contains any
// {{...}} placeholder, used to assert prompt-budget compliance (no
// placeholder may survive into a compiled prompt for variables that
// were defined).
func HasUnresolvedPlaceholders(text string) bool {
	return placeholderPattern.MatchString(text)
}
