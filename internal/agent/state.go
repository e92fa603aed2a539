// Package agent holds the per-URL state, the action and outcome types,
// the LLM planner and the specialist seam; the step loop that drives
// them lives in internal/runloop.
package agent

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// ActionKind enumerates what the executor can do.
type ActionKind string

const (
	ActionFillField ActionKind = "fill_field"
	ActionClick     ActionKind = "click"
	ActionScroll    ActionKind = "scroll"
	ActionWait      ActionKind = "wait"
	ActionComplete  ActionKind = "complete"
)

// Action is one planner decision, constrained to the five action
// kinds the executor understands.
type Action struct {
	Kind               ActionKind
	Selector           string
	FieldType          string
	Value              string
	UsePhoneNumberOnly bool
	Seconds            int
	Reasoning          string
}

// ActionRecord is the append-only log entry produced after executing
// an Action.
type ActionRecord struct {
	Kind         ActionKind
	Selector     string
	Value        string
	FieldType    string
	Success      bool
	ErrorMessage string
	Reasoning    string
}

// Category enumerates Outcome.primary_category values.
type Category string

const (
	CategoryValidation      Category = "validation"
	CategoryNotFound        Category = "not_found"
	CategoryHidden          Category = "hidden"
	CategorySelector        Category = "selector"
	CategoryNetwork         Category = "network"
	CategoryCaptcha         Category = "captcha"
	CategoryLLMError        Category = "llm_error"
	CategoryNoSubmit        Category = "no_submit"
	CategoryNoFields        Category = "no_fields"
	CategoryNoConfirmation  Category = "no_confirmation"
	CategoryStuckLoop       Category = "stuck_loop"
	CategoryBlogArticle     Category = "blog_article"
	CategoryLoginPage       Category = "login_page"
	CategoryPaymentRequired Category = "payment_required"
	CategoryAppStore        Category = "app_store"
	CategoryLoadError       Category = "load_error"
	CategoryNoForm          Category = "no_form"
	CategoryException       Category = "exception"
)

// Status enumerates Outcome.status values.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

const (
	MaxSteps               = 30
	recentActionWindow     = 10
	maxHallucinationsSoft  = 3
	maxHardFailures        = 5
	maxSubmitAttemptsBeforeLoop = 4
)

// State is the per-URL lifecycle object: created fresh for each URL
// and discarded once an Outcome is emitted.
type State struct {
	Step int

	Actions []ActionRecord

	FieldsFilled     map[string]string // selector -> value
	FieldTypesFilled map[string]string // field_type -> selector
	CheckboxesChecked mapset.Set[string]

	CountryCodeAttempts  int
	PhoneFallbackUsed    bool
	DetectedCountryCode  string

	SubmitAttempts         int
	ClickAttemptsAfterFill int
	FormSubmitted          bool

	URLBeforeSubmit       string
	FormCountBeforeSubmit int

	ActiveFormID             string
	ActiveFormSelector       string
	ActiveFormSubmitSelector string

	ErrorMessagesSeen map[string]int
	RecentActions     []string // bounded deque, newest last

	CaptchaAttempted      bool
	CaptchaSolved         bool
	CaptchaSolverAttempts int
	HallucinationCount int
	StuckLoopDetected  bool
	LLMFailureReason   string

	NonExistentSelectors mapset.Set[string]

	hardFailures int
}

// NewState returns a fresh per-URL state.
func NewState() *State {
	return &State{
		Step:                 1,
		FieldsFilled:         make(map[string]string),
		FieldTypesFilled:     make(map[string]string),
		CheckboxesChecked:    mapset.NewSet[string](),
		ErrorMessagesSeen:    make(map[string]int),
		NonExistentSelectors: mapset.NewSet[string](),
	}
}

// RecordAction appends to the action log and the bounded recent-action
// deque used by the stuck-loop pattern detector.
func (s *State) RecordAction(rec ActionRecord) {
	s.Actions = append(s.Actions, rec)
	pattern := string(rec.Kind) + ":" + rec.Selector
	s.RecentActions = append(s.RecentActions, pattern)
	if len(s.RecentActions) > recentActionWindow {
		s.RecentActions = s.RecentActions[len(s.RecentActions)-recentActionWindow:]
	}
	if !rec.Success {
		s.hardFailures++
	}
}

// HardFailuresExceeded reports the 5-hard-failure abort rule.
func (s *State) HardFailuresExceeded() bool {
	return s.hardFailures > maxHardFailures
}

// LastNActions returns up to n of the most recent action log entries.
func (s *State) LastNActions(n int) []ActionRecord {
	if n >= len(s.Actions) {
		return s.Actions
	}
	return s.Actions[len(s.Actions)-n:]
}

// MarkFieldFilled records the fill in both the exact-selector and the
// field-type refill-prevention maps. It does not touch
// ClickAttemptsAfterFill; the executor increments that on every
// post-fill click.
func (s *State) MarkFieldFilled(selector, fieldType, value string) {
	s.FieldsFilled[selector] = value
	if fieldType != "" {
		s.FieldTypesFilled[fieldType] = selector
	}
}

// Outcome is the terminal record emitted for one URL.
type Outcome struct {
	Status              Status
	FieldsFilled         []string
	FieldTypesFilled     []string
	PrimaryError         string
	PrimaryCategory      Category
	Actions              []ActionRecord
	SubmitAttempts       int
	FormSubmitted        bool
	StuckLoopDetected    bool
	CaptchaAttempted     bool
	CaptchaSolved        bool
}

// ToOutcome assembles the terminal Outcome from state plus the final
// verdict fields the loop determined.
func (s *State) ToOutcome(status Status, category Category, primaryError string) Outcome {
	fields := make([]string, 0, len(s.FieldsFilled))
	for sel := range s.FieldsFilled {
		fields = append(fields, sel)
	}
	types := make([]string, 0, len(s.FieldTypesFilled))
	for ft := range s.FieldTypesFilled {
		types = append(types, ft)
	}
	return Outcome{
		Status:           status,
		FieldsFilled:     fields,
		FieldTypesFilled: types,
		PrimaryError:     primaryError,
		PrimaryCategory:  category,
		Actions:          s.Actions,
		SubmitAttempts:   s.SubmitAttempts,
		FormSubmitted:    s.FormSubmitted,
		StuckLoopDetected: s.StuckLoopDetected,
		CaptchaAttempted: s.CaptchaAttempted,
		CaptchaSolved:    s.CaptchaSolved,
	}
}
