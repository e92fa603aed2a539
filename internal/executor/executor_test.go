package executor

import (
	"testing"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/config"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/credentials"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

func stateWithSubmitSelector(sel string) *agent.State {
	st := agent.NewState()
	st.ActiveFormSubmitSelector = sel
	return st
}

func TestIsRealSubmitRequiresKeywordAndFilledFieldAndNotCTA(t *testing.T) {
	if !isRealSubmit("#submit-btn", "submitting the signup form", 1, snapshot.KindText, false) {
		t.Fatalf("expected real submit")
	}
	if isRealSubmit("#go", "click the subscribe link", 0, snapshot.KindText, false) {
		t.Fatalf("no fields filled should not be a real submit")
	}
	if isRealSubmit("#submit", "subscribe now", 1, snapshot.KindCheckbox, false) {
		t.Fatalf("checkbox click should never be a real submit")
	}
	if isRealSubmit("#subscribe-cta", "subscribe", 1, snapshot.KindText, true) {
		t.Fatalf("CTA click should never be a real submit")
	}
	if isRealSubmit("#go-button", "proceed", 1, snapshot.KindText, false) {
		t.Fatalf("no submit keyword should not be a real submit")
	}
}

func TestFindInputKindMatchesSelectorOrDefaultsToText(t *testing.T) {
	snap := snapshot.PageSnapshot{
		Inputs: []snapshot.InputDescriptor{
			{Selector: "#marketing-opt-in", Kind: snapshot.KindCheckbox},
		},
	}
	if got := findInputKind(snap, "#marketing-opt-in"); got != snapshot.KindCheckbox {
		t.Fatalf("findInputKind = %q, want checkbox", got)
	}
	if got := findInputKind(snap, "#submit"); got != snapshot.KindText {
		t.Fatalf("findInputKind for unknown selector = %q, want text default", got)
	}
}

func TestResolvePhoneUsesCountrySignalsFromWholeForm(t *testing.T) {
	e := &Executor{creds: credentials.New(config.Credentials{}, 1)}
	st := agent.NewState()
	got := e.resolvePhone(agent.Action{}, nil, st, []string{"class:iti-flag", "+44"})
	if st.DetectedCountryCode != "44" {
		t.Fatalf("DetectedCountryCode = %q, want 44", st.DetectedCountryCode)
	}
	if got == "" {
		t.Fatalf("expected a generated phone number")
	}
}

func TestRewriteContainsSelectorExtractsQuotedText(t *testing.T) {
	text, ok := rewriteContainsSelector(`button:contains("Sign Up Now")`)
	if !ok || text != "Sign Up Now" {
		t.Fatalf("rewriteContainsSelector = %q, %v", text, ok)
	}
	if _, ok := rewriteContainsSelector("#plain-selector"); ok {
		t.Fatalf("expected no match for plain selector")
	}
}

func TestSimplifyClassSelectorTakesFirstClass(t *testing.T) {
	got := simplifyClassSelector("button.btn.btn-primary.large")
	if got != ".btn" {
		t.Fatalf("simplifyClassSelector = %q", got)
	}
	if simplifyClassSelector("#id-only") != "" {
		t.Fatalf("expected no class token")
	}
}

func TestLenientTelMatchAcceptsReformattedValue(t *testing.T) {
	if !lenientTelMatch("5551234567", "(555) 123-4567") {
		t.Fatalf("expected formatted readback to match")
	}
	if !lenientTelMatch("555", "+1 555 999 8888 ext 12") {
		t.Fatalf("expected >=7 digit observed value to count as accepted")
	}
	if lenientTelMatch("5551234567", "") {
		t.Fatalf("empty readback should not match a non-empty typed value")
	}
}

func TestClassifyOverlayBlockPrecedence(t *testing.T) {
	base := snapshot.PageSnapshot{Overlay: snapshot.OverlayInfo{Present: true}}

	captcha := base
	captcha.Overlay.HasCaptchaContent = true
	captcha.Overlay.HasErrorText = true
	if got := classifyOverlayBlock(captcha, true); got != OverlayCaptcha {
		t.Fatalf("expected captcha to win precedence, got %q", got)
	}

	errOverlay := base
	errOverlay.Overlay.HasErrorText = true
	errOverlay.Overlay.IsSuccessText = true
	if got := classifyOverlayBlock(errOverlay, true); got != OverlayHasError {
		t.Fatalf("expected error to beat success, got %q", got)
	}

	success := base
	success.Overlay.IsSuccessText = true
	if got := classifyOverlayBlock(success, true); got != OverlayIsSuccess {
		t.Fatalf("expected success verdict, got %q", got)
	}
	if got := classifyOverlayBlock(success, false); got != OverlayNone {
		t.Fatalf("success text without a submitted form should not verdict success, got %q", got)
	}

	none := snapshot.PageSnapshot{}
	if got := classifyOverlayBlock(none, true); got != OverlayNone {
		t.Fatalf("expected none when no overlay present, got %q", got)
	}
}

func TestBuildClickCandidatesPrefersActiveFormSubmitSelectorForRealSubmit(t *testing.T) {
	e := &Executor{}
	st := stateWithSubmitSelector("#active-submit")
	cands := e.buildClickCandidates("#other-button", true, st, snapshot.PageSnapshot{})
	if len(cands) == 0 || cands[0].value != "#active-submit" {
		t.Fatalf("expected active form submit selector first, got %+v", cands)
	}
}
