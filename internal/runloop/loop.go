// Package runloop implements the Agent Loop (C9): the per-URL state
// machine that composes the observer, classifier, planner, executor,
// guard, oracle, and CAPTCHA handler into one outcome. It sits above
// internal/agent rather than inside it, since the guard/oracle/captcha/
// executor packages it composes all depend on agent.State and
// agent.Action, and putting the loop in internal/agent too would
// create an import cycle.
package runloop

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/browser"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/captcha"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/classifier"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/config"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/executor"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/guard"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/oracle"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

const (
	interStepDelay        = 1500 * time.Millisecond
	visionEveryNthStep    = 5
	maxNavButtons         = 3
	submitsBeforeVerify   = 2
	maxConsecutiveSelFail = 3
)

// StopFunc reports whether the run has been asked to stop; checked at
// every step boundary, per the cooperative-cancellation rule.
type StopFunc func() bool

// Loop runs the per-URL step machine.
type Loop struct {
	ctrl     browser.Controller
	planner  agent.Planner
	executor *executor.Executor
	captcha  *captcha.Handler
	specs    *agent.SpecialistRegistry
	logger   zerolog.Logger
	batch    bool
}

// New wires the C1-C8 components behind one per-URL driver.
func New(ctrl browser.Controller, planner agent.Planner, exec *executor.Executor, capHandler *captcha.Handler, batchPlanning bool, logger zerolog.Logger, specialists ...agent.Specialist) *Loop {
	return &Loop{
		ctrl:     ctrl,
		planner:  planner,
		executor: exec,
		captcha:  capHandler,
		specs:    agent.NewSpecialistRegistry(specialists...),
		logger:   logger,
		batch:    batchPlanning,
	}
}

// Run drives one URL to a terminal Outcome.
func (l *Loop) Run(ctx context.Context, url string, creds config.Credentials, stop StopFunc) agent.Outcome {
	st := agent.NewState()

	if isAppStoreURL(url) {
		return st.ToOutcome(agent.StatusSkipped, agent.CategoryAppStore, "app store url")
	}

	if err := l.ctrl.Navigate(ctx, url); err != nil {
		return st.ToOutcome(agent.StatusError, agent.CategoryLoadError, err.Error())
	}

	snap, nav, err := l.observe(ctx, url)
	if err != nil {
		return st.ToOutcome(agent.StatusError, agent.CategoryLoadError, err.Error())
	}
	result := classifier.Classify(snap, nav)

	if result.Class == classifier.ClassAppStore {
		return st.ToOutcome(agent.StatusSkipped, agent.CategoryAppStore, "app store landing")
	}
	if result.Class == classifier.ClassLoadError {
		return st.ToOutcome(agent.StatusError, agent.CategoryLoadError, "navigation failed")
	}
	if outcome, rejected := l.rejectNonSignup(result.Class, st); rejected {
		return outcome
	}

	if len(snap.Forms) == 0 {
		if ok := l.clickNavigationButtons(ctx, &snap, &nav, &result, url); !ok {
			return st.ToOutcome(agent.StatusSkipped, agent.CategoryNoForm, "no signup form reachable")
		}
	}

	var queued []agent.Action

	for st.Step = 1; st.Step <= agent.MaxSteps; st.Step++ {
		if stop != nil && stop() {
			return st.ToOutcome(agent.StatusSkipped, "", "interrupted_by_stop")
		}

		snap, _, obsErr := l.observe(ctx, url)
		if obsErr != nil {
			l.logger.Warn().Err(obsErr).Msg("observe failed mid-run")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if isUnwantedPage(snap) {
			return st.ToOutcome(agent.StatusFailed, agent.CategoryPaymentRequired, "unwanted page reached")
		}

		if snap.Captcha.Present && snap.Captcha.Visible && !st.CaptchaAttempted {
			if capErr := l.captcha.Handle(ctx, snap, st); capErr != nil {
				l.logger.Debug().Err(capErr).Msg("captcha handling failed")
			} else if refreshed, _, refreshErr := l.observe(ctx, url); refreshErr == nil {
				snap = refreshed
			}
		}

		var action agent.Action
		var failure *agent.LLMFailure
		var planErr error
		action, failure, queued, planErr = l.nextAction(ctx, st, snap, url, creds, queued)
		if failure != nil {
			st.LLMFailureReason = string(failure.Reason)
			return st.ToOutcome(agent.StatusError, agent.CategoryLLMError, failure.Error())
		}
		if planErr != nil {
			l.logger.Warn().Err(planErr).Msg("planner error")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if blocked, rec := l.preExecuteGuard(st, action, snap); blocked {
			st.RecordAction(rec)
			if st.HardFailuresExceeded() {
				return st.ToOutcome(agent.StatusFailed, agent.CategorySelector, "too many hard failures")
			}
			time.Sleep(interStepDelay)
			continue
		}

		rec := l.executor.Execute(ctx, action, st, snap)
		st.RecordAction(rec)
		if !rec.Success {
			l.recordError(st, rec.ErrorMessage)
		}
		if st.HardFailuresExceeded() {
			return st.ToOutcome(agent.StatusFailed, agent.CategorySelector, "too many hard failures")
		}

		currentURL := l.currentURL()
		v := guard.CheckStuckLoop(st, snap, currentURL)
		if v.StuckLoop {
			st.StuckLoopDetected = true
			if v.RescuedSuccess {
				return st.ToOutcome(agent.StatusSuccess, "", "")
			}
			if v.CaptchaHandoff {
				if capErr := l.captcha.Handle(ctx, snap, st); capErr == nil {
					time.Sleep(interStepDelay)
					continue
				}
			}
			return st.ToOutcome(agent.StatusFailed, agent.CategoryStuckLoop, "stuck loop detected")
		}

		if action.Kind == agent.ActionComplete {
			finalSnap, _, finalErr := l.observe(ctx, url)
			if finalErr == nil {
				if verdict := oracle.Evaluate(finalSnap, st, l.currentURL()); verdict.Success {
					return st.ToOutcome(agent.StatusSuccess, "", "")
				}
			}
		}

		if shouldVerify(st) {
			verdict, vFailure, vErr := l.planner.Verify(ctx, l.buildVerifyContext(st, snap, url))
			if vFailure != nil {
				return st.ToOutcome(agent.StatusError, agent.CategoryLLMError, vFailure.Error())
			}
			if vErr == nil {
				switch verdict.Kind {
				case agent.VerdictSuccess:
					return st.ToOutcome(agent.StatusSuccess, "", "")
				case agent.VerdictNeedsMoreActions:
					queued = append(queued, verdict.NextActions...)
				case agent.VerdictValidationError:
					return st.ToOutcome(agent.StatusFailed, agent.CategoryValidation, verdict.Reason)
				case agent.VerdictFailed:
					return st.ToOutcome(agent.StatusFailed, agent.CategoryNoConfirmation, verdict.Reason)
				}
			}
		}

		time.Sleep(interStepDelay)
	}

	return st.ToOutcome(agent.StatusFailed, agent.CategoryNoConfirmation, "step limit reached")
}

// clickNavigationButtons handles the landing-with-nav initial guard:
// click up to maxNavButtons CTAs in priority order, re-observing and
// re-classifying after each, until a signup form appears.
func (l *Loop) clickNavigationButtons(ctx context.Context, snap *snapshot.PageSnapshot, nav *classifier.NavigationContext, result *classifier.Result, url string) bool {
	for i := 0; i < maxNavButtons && i < len(result.NavigationButtons); i++ {
		btn := result.NavigationButtons[i]
		if err := l.ctrl.Click(ctx, btn.Selector); err != nil {
			l.logger.Debug().Err(err).Str("selector", btn.Selector).Msg("nav button click failed")
			continue
		}
		time.Sleep(1 * time.Second)
		next, nextNav, err := l.observe(ctx, url)
		if err != nil {
			continue
		}
		*snap, *nav = next, nextNav
		if isAppStoreURL(snap.URL) {
			return false
		}
		*result = classifier.Classify(*snap, *nav)
		if result.Class == classifier.ClassSignup {
			return true
		}
	}
	return len(snap.Forms) > 0
}

func (l *Loop) nextAction(ctx context.Context, st *agent.State, snap snapshot.PageSnapshot, url string, creds config.Credentials, queued []agent.Action) (agent.Action, *agent.LLMFailure, []agent.Action, error) {
	if len(queued) > 0 {
		return queued[0], nil, queued[1:], nil
	}

	if st.Step == 1 && l.batch {
		simplifiedHTML, err := snapshot.CollectSimplifiedHTML(ctx, l.ctrl)
		if err != nil || simplifiedHTML == "" {
			simplifiedHTML = snap.VisibleTextPrefix
		}
		actions, failure, err := l.planner.BatchPlan(ctx, simplifiedHTML, creds, url)
		if failure != nil {
			return agent.Action{}, failure, nil, nil
		}
		if err == nil && len(actions) > 0 {
			return actions[0], nil, actions[1:], nil
		}
	}

	pc := l.buildPlanContext(st, snap, url, creds)

	if s := l.specs.Find(string(classifier.ClassSignup)); s != nil {
		act, err := s.NextAction(ctx, pc)
		return act, nil, nil, err
	}

	act, failure, err := l.planner.NextAction(ctx, pc)
	return act, failure, nil, err
}

func (l *Loop) buildPlanContext(st *agent.State, snap snapshot.PageSnapshot, url string, creds config.Credentials) agent.PlanContext {
	nonExistent := st.NonExistentSelectors.ToSlice()
	if len(nonExistent) > 10 {
		nonExistent = nonExistent[:10]
	}
	var errMsgs []string
	for msg := range st.ErrorMessagesSeen {
		errMsgs = append(errMsgs, msg)
	}

	requestVision := st.Step == 1 || st.Step%visionEveryNthStep == 0
	if len(st.Actions) > 0 {
		last := st.Actions[len(st.Actions)-1]
		if !last.Success || last.Kind == agent.ActionClick || last.Kind == agent.ActionWait {
			requestVision = true
		}
	}
	var shot string
	if requestVision {
		if png, err := l.ctrl.Page().Screenshot(); err == nil {
			shot = base64.StdEncoding.EncodeToString(png)
		}
	}

	return agent.PlanContext{
		Credentials:          creds,
		Step:                 st.Step,
		URL:                  url,
		Snapshot:             snap,
		ActionHistory:        st.LastNActions(5),
		FieldsFilled:         st.FieldsFilled,
		FieldTypesFilled:     st.FieldTypesFilled,
		ErrorMessages:        errMsgs,
		NonExistentSelectors: nonExistent,
		CheckboxesChecked:    st.CheckboxesChecked.ToSlice(),
		CountryCodeAttempts:  st.CountryCodeAttempts,
		DetectedCountryCode:  st.DetectedCountryCode,
		ActiveFormID:         st.ActiveFormID,
		ActiveFormSelector:   st.ActiveFormSelector,
		ActiveFormSubmitSel:  st.ActiveFormSubmitSelector,
		RequestVision:        requestVision,
		ScreenshotPNGBase64:  shot,
	}
}

func (l *Loop) buildVerifyContext(st *agent.State, snap snapshot.PageSnapshot, url string) agent.VerifyContext {
	var fields []string
	for sel := range st.FieldsFilled {
		fields = append(fields, sel)
	}
	return agent.VerifyContext{
		FieldsFilled:   fields,
		ActionsTaken:   st.Actions,
		Snapshot:       snap,
		URL:            url,
		NetworkSuccess: st.FormSubmitted,
		RetryReason:    st.LLMFailureReason,
	}
}

// preExecuteGuard filters hallucinated selectors and caps consecutive
// selector failures before an action reaches the executor.
func (l *Loop) preExecuteGuard(st *agent.State, action agent.Action, snap snapshot.PageSnapshot) (bool, agent.ActionRecord) {
	if action.Selector == "" {
		return false, agent.ActionRecord{}
	}
	html, err := l.ctrl.Page().Content()
	if err != nil || html == "" {
		html = renderSelectorSurface(snap)
	}
	if guard.CheckHallucination(st, action.Selector, action.Reasoning, html, st.FormSubmitted) {
		return true, agent.ActionRecord{Kind: action.Kind, Selector: action.Selector, FieldType: action.FieldType,
			Success: true, Reasoning: "hallucinated selector skipped: " + action.Reasoning}
	}
	if consecutiveSelectorFailures(st, action.Selector) >= maxConsecutiveSelFail {
		return true, agent.ActionRecord{Kind: action.Kind, Selector: action.Selector, FieldType: action.FieldType,
			Success: false, ErrorMessage: "selector failed repeatedly, requires a different approach"}
	}
	return false, agent.ActionRecord{}
}

func consecutiveSelectorFailures(st *agent.State, selector string) int {
	count := 0
	for i := len(st.Actions) - 1; i >= 0; i-- {
		if st.Actions[i].Selector != selector {
			break
		}
		if st.Actions[i].Success {
			break
		}
		count++
	}
	return count
}

func (l *Loop) recordError(st *agent.State, msg string) {
	if msg == "" {
		return
	}
	st.ErrorMessagesSeen[msg]++
}

func (l *Loop) observe(ctx context.Context, fallbackURL string) (snapshot.PageSnapshot, classifier.NavigationContext, error) {
	ctxSnap, cancel := snapshot.WithDeadline(ctx, 5*time.Second)
	defer cancel()
	snap, err := snapshot.Collect(ctxSnap, l.ctrl)
	if err != nil {
		return snap, classifier.NavigationContext{URL: fallbackURL, LoadError: &classifier.LoadError{Reason: classifyNavError(err)}}, err
	}
	return snap, classifier.NavigationContext{URL: snap.URL}, nil
}

func (l *Loop) currentURL() string {
	return l.ctrl.Page().URL()
}

func shouldVerify(st *agent.State) bool {
	return st.SubmitAttempts >= submitsBeforeVerify && !st.FormSubmitted && st.Step > 1
}

func isAppStoreURL(url string) bool {
	lower := strings.ToLower(url)
	for _, d := range []string{"apps.apple.com", "play.google.com", "itunes.apple.com"} {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

func isUnwantedPage(snap snapshot.PageSnapshot) bool {
	lower := strings.ToLower(snap.URL + " " + snap.Title)
	for _, kw := range []string{"/cart", "/checkout", "payment"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// classifyNavError maps a raw navigation error to one of the load
// error reasons the classifier's app-store/load-error guard names.
func classifyNavError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "err_cert") || strings.Contains(msg, "ssl"):
		return "ssl"
	case strings.Contains(msg, "err_name_not_resolved") || strings.Contains(msg, "dns"):
		return "dns"
	case strings.Contains(msg, "err_connection_refused"):
		return "refused"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "err_connection_reset"):
		return "reset"
	case strings.Contains(msg, "err_too_many_redirects"):
		return "too_many_redirects"
	case strings.Contains(msg, "err_empty_response"):
		return "empty_response"
	case strings.Contains(msg, "err_aborted"):
		return "aborted"
	default:
		return "aborted"
	}
}

// renderSelectorSurface is the fallback hallucination-check surface
// used only when Page().Content() itself fails; it flattens the
// observed selectors into attribute text the four selector-shape
// matchers can still match against.
func renderSelectorSurface(snap snapshot.PageSnapshot) string {
	var b strings.Builder
	for _, in := range snap.Inputs {
		fmt.Fprintf(&b, "<input selector=%q kind=%q %s>", in.Selector, in.Kind, selectorAsAttr(in.Selector))
	}
	for _, btn := range snap.Buttons {
		fmt.Fprintf(&b, "<button selector=%q %s>%s</button>", btn.Selector, selectorAsAttr(btn.Selector), btn.Text)
	}
	return b.String()
}

// selectorAsAttr renders an id selector as the id="..." attribute text
// ValidateSelectorExistsInHTML's id-shape matcher looks for; other
// selector shapes already embed their own attribute syntax verbatim.
func selectorAsAttr(selector string) string {
	if strings.HasPrefix(selector, "#") {
		return fmt.Sprintf(`id=%q`, strings.TrimPrefix(selector, "#"))
	}
	return ""
}

func (l *Loop) rejectNonSignup(class classifier.PageClass, st *agent.State) (agent.Outcome, bool) {
	switch class {
	case classifier.ClassLoginOnly:
		return st.ToOutcome(agent.StatusSkipped, agent.CategoryLoginPage, "login-only page"), true
	case classifier.ClassBlogArticle:
		return st.ToOutcome(agent.StatusSkipped, agent.CategoryBlogArticle, "blog article page"), true
	case classifier.ClassLandingNoForm:
		return st.ToOutcome(agent.StatusSkipped, agent.CategoryNoForm, "landing page, no form"), true
	}
	return agent.Outcome{}, false
}
