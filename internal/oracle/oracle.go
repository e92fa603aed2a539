// Package oracle implements the Success Oracle: it decides, from
// multiple corroborating signals rather than any single phrase, when
// a signup has actually gone through.
package oracle

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

var weakSuccessKeywords = []string{"thank", "success", "confirm", "welcome", "complete"}

var negativePhrases = []string{
	"error", "failed", "invalid", "required field", "please fill", "please enter",
	"please provide", "must be", "cannot be empty", "is required", "try again",
	"forgot password", "sign in", "log in",
}

// Verdict is the oracle's decision plus the rule that produced it, for
// the decision-logging the loop surfaces to the operator.
type Verdict struct {
	Success bool
	Reason  string
}

// Evaluate runs the six-rule combination over the current observation
// and AgentState. It is pure aside from the (optional) logger.
func Evaluate(snap snapshot.PageSnapshot, st *agent.State, currentURL string) Verdict {
	return EvaluateWithLogger(snap, st, currentURL, zerolog.Nop())
}

func EvaluateWithLogger(snap snapshot.PageSnapshot, st *agent.State, currentURL string, logger zerolog.Logger) Verdict {
	text := strings.ToLower(snap.VisibleTextPrefix)

	if containsAny(text, snapshot.StrongSuccessPhrases) {
		v := Verdict{Success: true, Reason: "strong_success_phrase"}
		logger.Debug().Str("reason", v.Reason).Msg("oracle success")
		return audit(v, st)
	}

	if containsAny(text, negativePhrases) {
		logger.Debug().Msg("oracle negative veto: no weak combination can succeed")
		return Verdict{Success: false, Reason: "negative_veto"}
	}

	hasWeakKeyword := containsAny(text, weakSuccessKeywords)

	if st.SubmitAttempts >= 1 && st.URLBeforeSubmit != "" && currentURL != st.URLBeforeSubmit && hasWeakKeyword {
		return audit(Verdict{Success: true, Reason: "url_change_plus_weak_keyword"}, st)
	}

	if st.SubmitAttempts >= 1 && st.FormCountBeforeSubmit > 0 && len(snap.Forms) == 0 && hasWeakKeyword {
		return audit(Verdict{Success: true, Reason: "form_count_dropped_to_zero"}, st)
	}

	if snap.Overlay.Present && (snap.Overlay.IsSuccessText || snap.Overlay.IsRecommendation) {
		return audit(Verdict{Success: true, Reason: "overlay_success_content"}, st)
	}

	return Verdict{Success: false, Reason: "no_success_signal"}
}

// audit is the rule-6 final gate: a verdict of success is only
// trustworthy if the run actually shows submission evidence.
func audit(v Verdict, st *agent.State) Verdict {
	if !v.Success {
		return v
	}
	submittedSomething := st.SubmitAttempts > 0 || st.ClickAttemptsAfterFill > 0
	filledSomething := len(st.FieldsFilled) > 0
	if !submittedSomething || !filledSomething {
		return Verdict{Success: false, Reason: "downgraded_no_submission_evidence"}
	}
	return v
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
