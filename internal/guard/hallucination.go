package guard

import (
	"regexp"
	"strings"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
)

var (
	idSelectorPattern       = regexp.MustCompile(`^#([a-zA-Z0-9_-]+)$`)
	nameSelectorPattern     = regexp.MustCompile(`\[name=['"]?([^'"\]]+)['"]?\]`)
	typeSelectorPattern     = regexp.MustCompile(`input\[type=['"]?([a-zA-Z]+)['"]?\]`)
	hasTextSelectorPattern  = regexp.MustCompile(`:has-text\(['"]([^'"]*)['"]\)`)
	closeButtonLookalikeRe = regexp.MustCompile(`(?i)(×|close|dismiss|modal)`)
)

// ValidateSelectorExistsInHTML checks an LLM-returned selector against
// the currently observed HTML, supporting the four shapes the planner
// is prompted to emit. Selectors outside those shapes are checked by
// plain substring presence of their raw text as a last resort.
func ValidateSelectorExistsInHTML(selector, html string) bool {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return false
	}
	if m := idSelectorPattern.FindStringSubmatch(selector); m != nil {
		return strings.Contains(html, `id="`+m[1]+`"`) || strings.Contains(html, `id='`+m[1]+`'`)
	}
	if m := nameSelectorPattern.FindStringSubmatch(selector); m != nil {
		return strings.Contains(html, `name="`+m[1]+`"`) || strings.Contains(html, `name='`+m[1]+`'`)
	}
	if m := typeSelectorPattern.FindStringSubmatch(selector); m != nil {
		return strings.Contains(html, `type="`+m[1]+`"`) || strings.Contains(html, `type='`+m[1]+`'`)
	}
	if m := hasTextSelectorPattern.FindStringSubmatch(selector); m != nil {
		return strings.Contains(strings.ToLower(html), strings.ToLower(m[1]))
	}
	return strings.Contains(html, selector)
}

// IsCloseButtonLookalike reports whether a selector/reasoning pair
// names a dismiss-style control. Per §4.6, such clicks are always
// treated as hallucinations once a form has been submitted, because
// the oracle (not the agent) decides when an overlay should be
// dismissed.
func IsCloseButtonLookalike(selectorOrReasoning string) bool {
	return closeButtonLookalikeRe.MatchString(selectorOrReasoning)
}

// CheckHallucination implements the pre-execute hallucination guard:
// it validates a planner-chosen selector and, for post-submit
// close-button lookalikes, forces a hallucination verdict regardless
// of whether the selector exists. On a hallucination it also mutates
// state exactly as §4.6 specifies: the selector is blacklisted and the
// counter incremented.
func CheckHallucination(st *agent.State, selector, reasoning, html string, formSubmitted bool) bool {
	if formSubmitted && (IsCloseButtonLookalike(selector) || IsCloseButtonLookalike(reasoning)) {
		st.NonExistentSelectors.Add(selector)
		st.HallucinationCount++
		return true
	}
	if selector == "" {
		return false
	}
	if st.NonExistentSelectors.Contains(selector) {
		return true
	}
	if !ValidateSelectorExistsInHTML(selector, html) {
		st.NonExistentSelectors.Add(selector)
		st.HallucinationCount++
		return true
	}
	return false
}
