// Package guard implements the Loop & Hallucination Guard: it runs
// after every executed action and decides whether the run is stuck,
// whether the planner hallucinated a selector, and when to give up on
// a URL outright.
package guard

import (
	"strings"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

const (
	errorRepeatThreshold = 3
	loopPatternWindow    = 4
)

// StuckLoopReason names why the loop tripped, distinct from the
// eventual Outcome category so the rescue check can still run first.
type StuckLoopReason string

const (
	ReasonNone          StuckLoopReason = ""
	ReasonErrorRepeated StuckLoopReason = "error_repeated"
	ReasonActionPattern StuckLoopReason = "action_pattern_loop"
	ReasonSubmitNoMove  StuckLoopReason = "submit_attempts_no_url_change"
)

// Verdict is what the guard decided after inspecting one step.
type Verdict struct {
	StuckLoop       bool
	Reason          StuckLoopReason
	RescuedSuccess  bool // oracle re-check found success text/URL despite the loop
	CaptchaHandoff  bool // reason is captcha-shaped and not yet attempted
	Hallucinated    bool
	HardFailuresHit bool
}

// CheckStuckLoop implements §4.6's three trigger conditions in order,
// then the oracle-rescue check before giving up.
func CheckStuckLoop(st *agent.State, snap snapshot.PageSnapshot, currentURL string) Verdict {
	reason := detectLoopReason(st, currentURL)
	if reason == ReasonNone {
		return Verdict{}
	}

	if isRescuedSuccess(snap, currentURL) {
		return Verdict{StuckLoop: true, Reason: reason, RescuedSuccess: true}
	}

	if reason == ReasonErrorRepeated && hasCaptchaErrorText(st) && !st.CaptchaAttempted {
		return Verdict{StuckLoop: true, Reason: reason, CaptchaHandoff: true}
	}

	return Verdict{StuckLoop: true, Reason: reason}
}

func detectLoopReason(st *agent.State, currentURL string) StuckLoopReason {
	for msg, count := range st.ErrorMessagesSeen {
		if count >= errorRepeatThreshold && strings.TrimSpace(msg) != "" {
			return ReasonErrorRepeated
		}
	}
	if hasTwoPatternLoop(st.RecentActions) {
		return ReasonActionPattern
	}
	if st.SubmitAttempts >= 4 && st.URLBeforeSubmit != "" && st.URLBeforeSubmit == currentURL {
		return ReasonSubmitNoMove
	}
	return ReasonNone
}

// hasTwoPatternLoop reports whether the last 4 recorded action
// patterns form an a,b,a,b cycle.
func hasTwoPatternLoop(recent []string) bool {
	if len(recent) < loopPatternWindow {
		return false
	}
	last := recent[len(recent)-loopPatternWindow:]
	return last[0] == last[2] && last[1] == last[3] && last[0] != last[1]
}

func isRescuedSuccess(snap snapshot.PageSnapshot, currentURL string) bool {
	text := strings.ToLower(snap.VisibleTextPrefix)
	for _, phrase := range snapshot.StrongSuccessPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	lowerURL := strings.ToLower(currentURL)
	for _, kw := range snapshot.SuccessURLKeywords {
		if strings.Contains(lowerURL, kw) {
			return true
		}
	}
	return false
}

func hasCaptchaErrorText(st *agent.State) bool {
	for msg := range st.ErrorMessagesSeen {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "captcha") || strings.Contains(lower, "verify you are human") ||
			strings.Contains(lower, "i'm not a robot") {
			return true
		}
	}
	return false
}
