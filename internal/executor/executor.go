// Package executor implements the Action Executor: it turns one
// agent.Action into Playwright calls against a live page and reports
// back what actually happened.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/browser"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/credentials"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

const fillWaitTimeout = 5 * time.Second

// Executor dispatches agent.Action values against a browser.Controller.
// creds is consulted whenever a fill_field action names a field_type,
// so the planner never has to write a real email/phone/name itself.
type Executor struct {
	ctrl   browser.Controller
	creds  *credentials.Engine
	logger zerolog.Logger
}

func New(ctrl browser.Controller) *Executor {
	return &Executor{ctrl: ctrl, logger: zerolog.Nop()}
}

func NewWithLogger(ctrl browser.Controller, logger zerolog.Logger) *Executor {
	return &Executor{ctrl: ctrl, logger: logger}
}

// NewWithCredentials wires the Credential & Phone Engine in so
// fill_field actions resolve real values from field_type instead of
// trusting whatever the planner put in Value.
func NewWithCredentials(ctrl browser.Controller, creds *credentials.Engine, logger zerolog.Logger) *Executor {
	return &Executor{ctrl: ctrl, creds: creds, logger: logger}
}

// Execute runs one action and returns the record the loop appends to
// AgentState. snap is the observation the action was planned against;
// st is mutated in place (active-form tracking, submit counters).
func (e *Executor) Execute(ctx context.Context, action agent.Action, st *agent.State, snap snapshot.PageSnapshot) agent.ActionRecord {
	switch action.Kind {
	case agent.ActionFillField:
		return e.fillField(ctx, action, st, snap)
	case agent.ActionClick:
		return e.click(ctx, action, st, snap)
	case agent.ActionScroll:
		return e.scroll(ctx, action)
	case agent.ActionWait:
		return e.wait(ctx, action)
	case agent.ActionComplete:
		return agent.ActionRecord{Kind: agent.ActionComplete, Success: true, Reasoning: action.Reasoning}
	default:
		return agent.ActionRecord{Kind: action.Kind, Success: false, ErrorMessage: fmt.Sprintf("unknown action kind %q", action.Kind)}
	}
}

func (e *Executor) wait(ctx context.Context, action agent.Action) agent.ActionRecord {
	seconds := action.Seconds
	if seconds <= 0 {
		seconds = 1
	}
	if seconds > 10 {
		seconds = 10
	}
	select {
	case <-ctx.Done():
		return agent.ActionRecord{Kind: agent.ActionWait, Success: false, ErrorMessage: ctx.Err().Error()}
	case <-time.After(time.Duration(seconds) * time.Second):
		return agent.ActionRecord{Kind: agent.ActionWait, Success: true, Reasoning: action.Reasoning}
	}
}

func (e *Executor) scroll(ctx context.Context, action agent.Action) agent.ActionRecord {
	direction := "down"
	if err := e.ctrl.Scroll(ctx, direction, 0); err != nil {
		return agent.ActionRecord{Kind: agent.ActionScroll, Success: false, ErrorMessage: err.Error()}
	}
	return agent.ActionRecord{Kind: agent.ActionScroll, Success: true, Reasoning: action.Reasoning}
}

// fillField resolves the target input's kind from the snapshot and
// dispatches to the checkbox/select/text strategy that matches it.
func (e *Executor) fillField(ctx context.Context, action agent.Action, st *agent.State, snap snapshot.PageSnapshot) agent.ActionRecord {
	input := findInput(snap, action.Selector)
	if err := e.ctrl.WaitFor(ctx, action.Selector, fillWaitTimeout); err != nil && (input == nil || !input.IsHiddenSRonly) {
		st.NonExistentSelectors.Add(action.Selector)
		return agent.ActionRecord{Kind: agent.ActionFillField, Selector: action.Selector, FieldType: action.FieldType,
			Success: false, ErrorMessage: fmt.Sprintf("selector not found: %s", err), Reasoning: action.Reasoning}
	}

	action.Value = e.resolveValue(action, input, st, snap.CountrySignals)

	var err error
	switch {
	case input != nil && (input.Kind == snapshot.KindCheckbox || input.Kind == snapshot.KindRadio || input.Kind == snapshot.KindDivCheckbox):
		err = e.fillCheckbox(ctx, action, input, st)
	case input != nil && input.Kind == snapshot.KindSelect:
		err = e.fillSelect(ctx, action)
	default:
		err = e.fillTextInput(ctx, action, input)
	}

	rec := agent.ActionRecord{Kind: agent.ActionFillField, Selector: action.Selector, Value: action.Value,
		FieldType: action.FieldType, Reasoning: action.Reasoning}
	if err != nil {
		rec.Success = false
		rec.ErrorMessage = err.Error()
		return rec
	}
	rec.Success = true
	st.MarkFieldFilled(action.Selector, action.FieldType, action.Value)
	if input != nil && (input.Kind == snapshot.KindCheckbox || input.Kind == snapshot.KindDivCheckbox) {
		st.CheckboxesChecked.Add(action.Selector)
	}
	e.trackActiveForm(st, snap, input)
	return rec
}

func (e *Executor) fillTextInput(ctx context.Context, action agent.Action, input *snapshot.InputDescriptor) error {
	if err := e.ctrl.Fill(ctx, action.Selector, action.Value); err != nil {
		return err
	}
	observed, err := e.ctrl.Read(ctx, action.Selector)
	if err != nil {
		// readback is a verification nicety; a fill that didn't error
		// is still treated as successful when readback itself fails.
		return nil
	}
	if input != nil && input.Kind == snapshot.KindTel {
		if !lenientTelMatch(action.Value, observed) {
			return fmt.Errorf("tel field did not accept value: got %q want ~%q", observed, action.Value)
		}
		return nil
	}
	if strings.TrimSpace(observed) == "" && strings.TrimSpace(action.Value) != "" {
		return fmt.Errorf("field did not accept value: read back empty")
	}
	return nil
}

func (e *Executor) fillSelect(_ context.Context, action agent.Action) error {
	page := e.ctrl.Page()
	loc := page.Locator(action.Selector)
	values := []string{action.Value}
	if _, err := loc.SelectOption(playwright.SelectOptionValues{Values: &values}); err == nil {
		return nil
	}
	labels := []string{action.Value}
	if _, err := loc.SelectOption(playwright.SelectOptionValues{Labels: &labels}); err != nil {
		return fmt.Errorf("select option %q not found by value or label: %w", action.Value, err)
	}
	return nil
}

func findInput(snap snapshot.PageSnapshot, selector string) *snapshot.InputDescriptor {
	for i := range snap.Inputs {
		if snap.Inputs[i].Selector == selector {
			return &snap.Inputs[i]
		}
	}
	return nil
}

func (e *Executor) trackActiveForm(st *agent.State, snap snapshot.PageSnapshot, input *snapshot.InputDescriptor) {
	if input == nil || input.FormIDRef == "" {
		return
	}
	st.ActiveFormID = input.FormIDRef
	st.ActiveFormSubmitSelector = input.FormSubmitSelectorRef
	for _, f := range snap.Forms {
		if f.StableFormID == input.FormIDRef {
			st.ActiveFormSelector = f.Selector
			break
		}
	}
}
