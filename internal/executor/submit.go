package executor

import (
	"context"
	"strings"
	"time"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

var submitKeywords = []string{"submit", "subscribe", "sign up", "signup", "register", "join", "continue", "get started"}

// isRealSubmit implements the §4.5 real-submit classification: a click
// only counts toward submit_attempts/form_submitted when all four
// conditions hold.
func isRealSubmit(selector, reasoning string, fieldsFilled int, kind snapshot.InputKind, isCTA bool) bool {
	hay := strings.ToLower(selector + " " + reasoning)
	hasKeyword := false
	for _, kw := range submitKeywords {
		if strings.Contains(hay, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return false
	}
	if fieldsFilled < 1 {
		return false
	}
	if kind == snapshot.KindRadio || kind == snapshot.KindCheckbox {
		return false
	}
	if isCTA {
		return false
	}
	return true
}

func (e *Executor) click(ctx context.Context, action agent.Action, st *agent.State, snap snapshot.PageSnapshot) agent.ActionRecord {
	btn := findButton(snap, action.Selector)
	fieldsFilled := len(st.FieldsFilled)
	kind := findInputKind(snap, action.Selector)
	isCTA := btn != nil && btn.IsCTA
	real := isRealSubmit(action.Selector, action.Reasoning, fieldsFilled, kind, isCTA)

	candidates := e.buildClickCandidates(action.Selector, real, st, snap)

	before := e.currentURL()
	clicked, lastErr := e.tryClickCandidates(ctx, candidates)

	if !clicked {
		verdict := classifyOverlayBlock(snap, st.FormSubmitted)
		switch verdict {
		case OverlayCaptcha:
			return agent.ActionRecord{Kind: agent.ActionClick, Selector: action.Selector, Reasoning: action.Reasoning,
				Success: false, ErrorMessage: "captcha overlay blocking click"}
		case OverlayHasError:
			return agent.ActionRecord{Kind: agent.ActionClick, Selector: action.Selector, Reasoning: action.Reasoning,
				Success: false, ErrorMessage: "error overlay blocking click"}
		case OverlayIsSuccess:
			return agent.ActionRecord{Kind: agent.ActionClick, Selector: action.Selector, Reasoning: action.Reasoning, Success: true}
		}
		if e.dismissOverlay(ctx, snap) {
			clicked, lastErr = e.tryClickCandidates(ctx, candidates)
		}
		if !clicked {
			return agent.ActionRecord{Kind: agent.ActionClick, Selector: action.Selector, Reasoning: action.Reasoning,
				Success: false, ErrorMessage: errString(lastErr)}
		}
	}

	if real {
		st.SubmitAttempts++
		st.FormSubmitted = true
		st.URLBeforeSubmit = before
		st.FormCountBeforeSubmit = len(snap.Forms)
	}
	if fieldsFilled > 0 {
		st.ClickAttemptsAfterFill++
	}

	e.afterClickSettle(ctx, before, isCTA)

	return agent.ActionRecord{Kind: agent.ActionClick, Selector: action.Selector, Reasoning: action.Reasoning, Success: true}
}

func (e *Executor) tryClickCandidates(ctx context.Context, candidates []clickTarget) (bool, error) {
	var lastErr error
	for _, candidate := range candidates {
		if err := e.attemptClick(ctx, candidate); err == nil {
			return true, nil
		} else {
			lastErr = err
		}
	}
	return false, lastErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func findButton(snap snapshot.PageSnapshot, selector string) *snapshot.ButtonDescriptor {
	for i := range snap.Buttons {
		if snap.Buttons[i].Selector == selector {
			return &snap.Buttons[i]
		}
	}
	return nil
}

// findInputKind resolves the kind of the input a click selector targets,
// so isRealSubmit can exclude radio/checkbox clicks from counting as a
// real submit. Selectors that don't name a known input (the common
// case, a submit button) default to KindText, which carries no
// exclusion.
func findInputKind(snap snapshot.PageSnapshot, selector string) snapshot.InputKind {
	for i := range snap.Inputs {
		if snap.Inputs[i].Selector == selector {
			return snap.Inputs[i].Kind
		}
	}
	return snapshot.KindText
}

// buildClickCandidates orders selector attempts per §4.5: the active
// form's resolved submit selector first (for real submits), then the
// literal selector, then the fallback chain.
func (e *Executor) buildClickCandidates(selector string, real bool, st *agent.State, snap snapshot.PageSnapshot) []clickTarget {
	var out []clickTarget
	if real && st.ActiveFormSubmitSelector != "" && st.ActiveFormSubmitSelector != selector {
		out = append(out, clickTarget{kind: targetSelector, value: st.ActiveFormSubmitSelector})
	}
	out = append(out, clickTarget{kind: targetSelector, value: selector})
	if text, ok := rewriteContainsSelector(selector); ok {
		out = append(out, clickTarget{kind: targetText, value: text})
	}
	if text := textFromButtonSnapshot(snap, selector); text != "" {
		out = append(out, clickTarget{kind: targetFuzzyText, value: text})
	}
	if simplified := simplifyClassSelector(selector); simplified != "" && simplified != selector {
		out = append(out, clickTarget{kind: targetSelector, value: simplified})
	}
	return out
}

func textFromButtonSnapshot(snap snapshot.PageSnapshot, selector string) string {
	if btn := findButton(snap, selector); btn != nil {
		return btn.Text
	}
	return ""
}

type clickTargetKind int

const (
	targetSelector clickTargetKind = iota
	targetText
	targetFuzzyText
)

type clickTarget struct {
	kind  clickTargetKind
	value string
}

func (e *Executor) attemptClick(ctx context.Context, t clickTarget) error {
	if strings.TrimSpace(t.value) == "" {
		return errEmptyTarget
	}
	switch t.kind {
	case targetText:
		return e.ctrl.ClickText(ctx, t.value, false)
	case targetFuzzyText:
		return e.ctrl.ClickByTextFuzzy(ctx, t.value)
	default:
		_ = e.ctrl.ScrollToElement(ctx, t.value)
		return e.ctrl.Click(ctx, t.value)
	}
}

var errEmptyTarget = clickTargetError("empty click target")

type clickTargetError string

func (e clickTargetError) Error() string { return string(e) }

func (e *Executor) currentURL() string {
	page := e.ctrl.Page()
	if page == nil {
		return ""
	}
	return page.URL()
}

// afterClickSettle implements §4.5.1's post-click navigation
// discipline: a real URL change gets a generous settle window, CTA
// clicks without navigation get a shorter one, everything else a flat
// 1.5s pause for modals/transitions.
func (e *Executor) afterClickSettle(ctx context.Context, before string, isCTA bool) {
	after := e.currentURL()
	if after != before && before != "" {
		_ = e.ctrl.WaitForStableDOM(ctx, 10*time.Second)
		time.Sleep(1500 * time.Millisecond)
		return
	}
	if isCTA {
		_ = e.ctrl.WaitForStableDOM(ctx, 5*time.Second)
	}
	time.Sleep(1500 * time.Millisecond)
}
