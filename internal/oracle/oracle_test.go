package oracle

import (
	"testing"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

func submittedState() *agent.State {
	st := agent.NewState()
	st.SubmitAttempts = 1
	st.FieldsFilled["#email"] = "a@b.com"
	return st
}

func TestEvaluateStrongPhraseIsSuccess(t *testing.T) {
	st := submittedState()
	snap := snapshot.PageSnapshot{VisibleTextPrefix: "thank you for subscribing!"}
	v := Evaluate(snap, st, "https://example.com/signup")
	if !v.Success || v.Reason != "strong_success_phrase" {
		t.Fatalf("expected strong phrase success, got %+v", v)
	}
}

func TestEvaluateNegativeVetoBlocksWeakCombination(t *testing.T) {
	st := submittedState()
	st.URLBeforeSubmit = "https://example.com/signup"
	snap := snapshot.PageSnapshot{VisibleTextPrefix: "error: email is required, please try again to confirm"}
	v := Evaluate(snap, st, "https://example.com/signup/thank-you")
	if v.Success {
		t.Fatalf("expected veto to block success, got %+v", v)
	}
}

func TestEvaluateURLChangePlusWeakKeyword(t *testing.T) {
	st := submittedState()
	st.URLBeforeSubmit = "https://example.com/signup"
	snap := snapshot.PageSnapshot{VisibleTextPrefix: "your confirmation is on the way"}
	v := Evaluate(snap, st, "https://example.com/signup/next")
	if !v.Success || v.Reason != "url_change_plus_weak_keyword" {
		t.Fatalf("expected url-change success, got %+v", v)
	}
}

func TestEvaluateFormCountDrop(t *testing.T) {
	st := submittedState()
	st.FormCountBeforeSubmit = 1
	snap := snapshot.PageSnapshot{VisibleTextPrefix: "registration success", Forms: nil}
	v := Evaluate(snap, st, "https://example.com/signup")
	if !v.Success || v.Reason != "form_count_dropped_to_zero" {
		t.Fatalf("expected form-count-drop success, got %+v", v)
	}
}

func TestEvaluateOverlaySuccessContent(t *testing.T) {
	st := submittedState()
	snap := snapshot.PageSnapshot{Overlay: snapshot.OverlayInfo{Present: true, IsRecommendation: true}}
	v := Evaluate(snap, st, "https://example.com/signup")
	if !v.Success || v.Reason != "overlay_success_content" {
		t.Fatalf("expected overlay success, got %+v", v)
	}
}

func TestEvaluateOverlayIframeAloneIsNotSufficient(t *testing.T) {
	st := submittedState()
	snap := snapshot.PageSnapshot{Overlay: snapshot.OverlayInfo{Present: true, HasIframe: true}}
	v := Evaluate(snap, st, "https://example.com/signup")
	if v.Success {
		t.Fatalf("expected iframe-only overlay to not imply success, got %+v", v)
	}
}

func TestEvaluateFinalAuditDowngradesWithoutSubmissionEvidence(t *testing.T) {
	st := agent.NewState() // no submits, no fields filled
	snap := snapshot.PageSnapshot{VisibleTextPrefix: "thank you for visiting"}
	v := Evaluate(snap, st, "https://example.com/")
	if v.Success || v.Reason != "downgraded_no_submission_evidence" {
		t.Fatalf("expected downgrade without submission evidence, got %+v", v)
	}
}

func TestEvaluateNoSignalIsFailure(t *testing.T) {
	st := submittedState()
	snap := snapshot.PageSnapshot{VisibleTextPrefix: "browse our newest product catalog today"}
	v := Evaluate(snap, st, "https://example.com/")
	if v.Success {
		t.Fatalf("expected no success signal, got %+v", v)
	}
}
