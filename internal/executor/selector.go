package executor

import (
	"regexp"
	"strings"
)

var containsPattern = regexp.MustCompile(`:contains\(\s*["']([^"']*)["']\s*\)`)

// rewriteContainsSelector extracts the quoted text out of a
// jQuery-style `:contains("...")` selector the planner sometimes
// emits, since that pseudo-class has no native CSS equivalent.
func rewriteContainsSelector(selector string) (string, bool) {
	m := containsPattern.FindStringSubmatch(selector)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var classPattern = regexp.MustCompile(`\.([a-zA-Z0-9_-]+)`)

// simplifyClassSelector reduces a compound selector down to its first
// class token, a last-resort fallback for selectors the planner
// over-qualified (e.g. "button.btn.btn-primary.large" -> ".btn").
func simplifyClassSelector(selector string) string {
	m := classPattern.FindStringSubmatch(selector)
	if m == nil {
		return ""
	}
	return "." + m[1]
}

// lenientTelMatch implements the §4.5 tel-field readback comparison:
// input masks routinely reformat phone numbers, so an exact string
// match is too strict. Any overlap of typed digits in the observed
// value, or an observed value with at least 7 digits, counts as
// accepted.
func lenientTelMatch(typed, observed string) bool {
	typedDigits := digitsOnly(typed)
	observedDigits := digitsOnly(observed)
	if observedDigits == "" {
		return typedDigits == ""
	}
	if len(observedDigits) >= 7 {
		return true
	}
	return strings.Contains(observedDigits, typedDigits) || strings.Contains(typedDigits, observedDigits)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
