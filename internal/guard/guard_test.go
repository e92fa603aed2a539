package guard

import (
	"testing"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

func TestCheckStuckLoopErrorRepeatedTriggers(t *testing.T) {
	st := agent.NewState()
	st.ErrorMessagesSeen["email is invalid"] = 3
	v := CheckStuckLoop(st, snapshot.PageSnapshot{}, "https://example.com/signup")
	if !v.StuckLoop || v.Reason != ReasonErrorRepeated {
		t.Fatalf("expected error-repeated stuck loop, got %+v", v)
	}
}

func TestCheckStuckLoopActionPatternTriggers(t *testing.T) {
	st := agent.NewState()
	st.RecentActions = []string{"click:#a", "fill_field:#email", "click:#a", "fill_field:#email"}
	v := CheckStuckLoop(st, snapshot.PageSnapshot{}, "https://example.com/signup")
	if !v.StuckLoop || v.Reason != ReasonActionPattern {
		t.Fatalf("expected action-pattern stuck loop, got %+v", v)
	}
}

func TestCheckStuckLoopSubmitNoMoveTriggers(t *testing.T) {
	st := agent.NewState()
	st.SubmitAttempts = 4
	st.URLBeforeSubmit = "https://example.com/signup"
	v := CheckStuckLoop(st, snapshot.PageSnapshot{}, "https://example.com/signup")
	if !v.StuckLoop || v.Reason != ReasonSubmitNoMove {
		t.Fatalf("expected submit-no-move stuck loop, got %+v", v)
	}
}

func TestCheckStuckLoopNoTriggerWhenNothingMatches(t *testing.T) {
	st := agent.NewState()
	v := CheckStuckLoop(st, snapshot.PageSnapshot{}, "https://example.com/signup")
	if v.StuckLoop {
		t.Fatalf("expected no stuck loop, got %+v", v)
	}
}

func TestCheckStuckLoopRescuedByOracleSuccessText(t *testing.T) {
	st := agent.NewState()
	st.ErrorMessagesSeen["field required"] = 3
	snap := snapshot.PageSnapshot{VisibleTextPrefix: "thank you for registering, check your inbox"}
	v := CheckStuckLoop(st, snap, "https://example.com/signup")
	if !v.StuckLoop || !v.RescuedSuccess {
		t.Fatalf("expected stuck loop to be rescued, got %+v", v)
	}
}

func TestCheckStuckLoopRescuedBySuccessURL(t *testing.T) {
	st := agent.NewState()
	st.SubmitAttempts = 4
	st.URLBeforeSubmit = "https://example.com/signup"
	v := CheckStuckLoop(st, snapshot.PageSnapshot{}, "https://example.com/signup/thank-you")
	if !v.StuckLoop || !v.RescuedSuccess {
		t.Fatalf("expected stuck loop to be rescued by success URL, got %+v", v)
	}
}

func TestCheckStuckLoopCaptchaHandoffWhenNotAttempted(t *testing.T) {
	st := agent.NewState()
	st.ErrorMessagesSeen["please verify you are human"] = 3
	v := CheckStuckLoop(st, snapshot.PageSnapshot{}, "https://example.com/signup")
	if !v.StuckLoop || !v.CaptchaHandoff {
		t.Fatalf("expected captcha handoff, got %+v", v)
	}
}

func TestValidateSelectorExistsInHTMLChecksFourShapes(t *testing.T) {
	html := `<input id="email-field" name="user_email" type="email">`
	cases := map[string]bool{
		"#email-field":             true,
		"#missing-id":              false,
		`[name='user_email']`:      true,
		`[name='other']`:           false,
		`input[type='email']`:      true,
		`input[type='tel']`:        false,
		`:has-text('email-field')`: true,
	}
	for sel, want := range cases {
		if got := ValidateSelectorExistsInHTML(sel, html); got != want {
			t.Fatalf("ValidateSelectorExistsInHTML(%q) = %v, want %v", sel, got, want)
		}
	}
}

func TestCheckHallucinationMarksUnknownSelector(t *testing.T) {
	st := agent.NewState()
	html := `<input id="email-field">`
	if !CheckHallucination(st, "#does-not-exist", "fill the field", html, false) {
		t.Fatalf("expected hallucination verdict")
	}
	if !st.NonExistentSelectors.Contains("#does-not-exist") {
		t.Fatalf("expected selector to be blacklisted")
	}
	if st.HallucinationCount != 1 {
		t.Fatalf("expected hallucination count 1, got %d", st.HallucinationCount)
	}
}

func TestCheckHallucinationTreatsPostSubmitCloseLookalikeAsHallucination(t *testing.T) {
	st := agent.NewState()
	html := `<button class="close-modal">x</button>`
	if !CheckHallucination(st, ".close-modal", "close the modal", html, true) {
		t.Fatalf("expected close-button lookalike to be a hallucination after submit")
	}
}

func TestCheckHallucinationAcceptsKnownSelector(t *testing.T) {
	st := agent.NewState()
	html := `<input id="email-field">`
	if CheckHallucination(st, "#email-field", "fill the field", html, false) {
		t.Fatalf("expected no hallucination for a real selector")
	}
}
