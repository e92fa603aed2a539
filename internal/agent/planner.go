package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/config"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/llm"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

// LLMFailureReason enumerates the fatal-vs-transient taxonomy the
// planner's transport surfaces to the loop.
type LLMFailureReason string

const (
	LLMRateLimitExceeded LLMFailureReason = "rate_limit_exceeded"
	LLMInvalidAPIKey     LLMFailureReason = "invalid_api_key"
	LLMAccessDenied      LLMFailureReason = "api_access_denied"
	LLMGenericFailure    LLMFailureReason = "llm_error"
)

// LLMFailure is a fatal-to-the-run planner error.
type LLMFailure struct {
	Reason  LLMFailureReason
	Message string
}

func (f *LLMFailure) Error() string { return fmt.Sprintf("%s: %s", f.Reason, f.Message) }

// VerdictKind enumerates verify() outcomes.
type VerdictKind string

const (
	VerdictSuccess          VerdictKind = "success"
	VerdictNeedsMoreActions VerdictKind = "needs_more_actions"
	VerdictValidationError  VerdictKind = "validation_error"
	VerdictFailed           VerdictKind = "failed"
)

// Verdict is the result of a verify() call.
type Verdict struct {
	Kind        VerdictKind
	NextActions []Action
	Reason      string
}

// PlanContext is everything next_action needs to decide one step.
type PlanContext struct {
	Credentials            config.Credentials
	Step                   int
	URL                    string
	Snapshot               snapshot.PageSnapshot
	ActionHistory          []ActionRecord // last 5
	FieldsFilled           map[string]string
	FieldTypesFilled       map[string]string
	ErrorMessages          []string
	FailedSelectorHints    []string
	NonExistentSelectors   []string // capped to 10
	CheckboxesChecked      []string
	CountryCodeAttempts    int
	DetectedCountryCode    string
	ActiveFormID           string
	ActiveFormSelector     string
	ActiveFormSubmitSel    string
	RequestVision          bool
	ScreenshotPNGBase64    string
}

// VerifyContext is everything verify() needs.
type VerifyContext struct {
	FieldsFilled   []string
	ActionsTaken   []ActionRecord
	Snapshot       snapshot.PageSnapshot
	URL            string
	NetworkSuccess bool
	RetryReason    string
}

// Planner is the LLM-backed decision surface: stepwise single-action
// planning, one-shot batch planning, and post-submit verification.
type Planner interface {
	NextAction(ctx context.Context, pc PlanContext) (Action, *LLMFailure, error)
	BatchPlan(ctx context.Context, simplifiedHTML string, creds config.Credentials, url string) ([]Action, *LLMFailure, error)
	Verify(ctx context.Context, vc VerifyContext) (Verdict, *LLMFailure, error)
}

const validFieldTypes = "email, first_name, last_name, full_name, phone, checkbox, business_name, website, message"

type fastPlanner struct {
	client llm.Client
	costs  *llm.CostAccumulator
}

// NewPlanner wires an LLM transport and the run's shared cost
// accumulator into a Planner.
func NewPlanner(client llm.Client, costs *llm.CostAccumulator) Planner {
	return &fastPlanner{client: client, costs: costs}
}

func (p *fastPlanner) record(resp llm.Response) {
	if p.costs != nil {
		p.costs.Record(p.client.Name(), resp.Usage)
	}
}

func (p *fastPlanner) NextAction(ctx context.Context, pc PlanContext) (Action, *LLMFailure, error) {
	system := stepwiseSystemPrompt()
	user := buildStepwisePrompt(pc)

	req := llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: "user", Content: user}},
		Temperature: 0,
		MaxTokens:   900,
		JSONMode:    true,
	}
	if pc.RequestVision && pc.ScreenshotPNGBase64 != "" {
		req.Messages[0].Images = []llm.ImageBlock{{MediaType: "image/png", Base64: pc.ScreenshotPNGBase64}}
	}

	resp, err := p.client.Generate(ctx, req)
	if err != nil {
		return Action{}, classifyLLMError(err), nil
	}
	p.record(resp)

	var parsed struct {
		Action             string `json:"action"`
		Selector           string `json:"selector"`
		FieldType          string `json:"field_type"`
		Value              string `json:"value"`
		UsePhoneNumberOnly bool   `json:"use_phone_number_only"`
		Seconds            int    `json:"seconds"`
		Reasoning          string `json:"reasoning"`
	}
	jsonStr, err := extractJSON(resp.Text)
	if err != nil {
		return Action{}, nil, fmt.Errorf("next_action: %w: raw=%q", err, resp.Text)
	}
	if err := json.Unmarshal([]byte(removeJSONComments(jsonStr)), &parsed); err != nil {
		return Action{}, nil, fmt.Errorf("next_action parse: %w", err)
	}

	act := Action{
		Kind:               ActionKind(strings.TrimSpace(parsed.Action)),
		Selector:           strings.TrimSpace(parsed.Selector),
		FieldType:          strings.TrimSpace(parsed.FieldType),
		Value:              parsed.Value,
		UsePhoneNumberOnly: parsed.UsePhoneNumberOnly,
		Seconds:            parsed.Seconds,
		Reasoning:          strings.TrimSpace(parsed.Reasoning),
	}
	if pc.Step <= 1 && act.Kind == ActionComplete {
		return Action{}, nil, fmt.Errorf("next_action: planner marked complete on step 1")
	}
	return act, nil, nil
}

func (p *fastPlanner) BatchPlan(ctx context.Context, simplifiedHTML string, creds config.Credentials, url string) ([]Action, *LLMFailure, error) {
	trimmed := strings.TrimSpace(simplifiedHTML)
	if len(trimmed) < 50 || !hasFillableInput(trimmed) {
		return []Action{{Kind: ActionComplete, Reasoning: "no signup form"}}, nil, nil
	}
	if onlySearchForm(trimmed) {
		return []Action{{Kind: ActionComplete, Reasoning: "no signup form"}}, nil, nil
	}

	system := "You plan a sequence of form-filling actions from raw HTML. " +
		"Valid field_type values: " + validFieldTypes + ". " +
		"Every selector you return MUST appear verbatim in the given HTML. " +
		"End the plan with a click on the form's submit control. " +
		"Respond as {\"actions\":[{\"action\":...,\"selector\":...,\"field_type\":...,\"value\":...,\"reasoning\":...}]}."
	user := fmt.Sprintf("URL: %s\nCredentials: email=%s name=%s phone=%s\n\nHTML:\n%s",
		url, creds.Email, creds.FullName(), creds.Phone, truncateText(trimmed, 12000))

	resp, err := p.client.Generate(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: "user", Content: user}},
		Temperature: 0,
		MaxTokens:   1200,
		JSONMode:    true,
	})
	if err != nil {
		return nil, classifyLLMError(err), nil
	}
	p.record(resp)

	jsonStr, err := extractJSON(resp.Text)
	if err != nil {
		return nil, nil, fmt.Errorf("batch_plan: %w", err)
	}
	var parsed struct {
		Actions []struct {
			Action    string `json:"action"`
			Selector  string `json:"selector"`
			FieldType string `json:"field_type"`
			Value     string `json:"value"`
			Reasoning string `json:"reasoning"`
		} `json:"actions"`
	}
	if err := json.Unmarshal([]byte(removeJSONComments(jsonStr)), &parsed); err != nil {
		return nil, nil, fmt.Errorf("batch_plan parse: %w", err)
	}
	actions := make([]Action, 0, len(parsed.Actions))
	for _, a := range parsed.Actions {
		actions = append(actions, Action{
			Kind:      ActionKind(a.Action),
			Selector:  a.Selector,
			FieldType: a.FieldType,
			Value:     a.Value,
			Reasoning: a.Reasoning,
		})
	}
	return actions, nil, nil
}

func (p *fastPlanner) Verify(ctx context.Context, vc VerifyContext) (Verdict, *LLMFailure, error) {
	system := "You verify whether a signup/form submission succeeded. Precedence: " +
		"validation/rejection phrases (required, invalid, \"Different Address Needed\", blocked, already subscribed) " +
		"override every other signal; sales/upsell pages with filled fields imply success; " +
		"explicit thank-you phrases imply success; a new second-step form implies needs_more_actions. " +
		"Respond as {\"verdict\":\"success|needs_more_actions|validation_error|failed\",\"reason\":\"...\"," +
		"\"next_actions\":[{\"action\":...,\"selector\":...,\"field_type\":...,\"value\":...}]}."
	user := fmt.Sprintf(
		"URL: %s\nFields filled: %v\nActions taken: %d\nNetwork success observed: %v\nRetry reason: %s\nVisible text: %s",
		vc.URL, vc.FieldsFilled, len(vc.ActionsTaken), vc.NetworkSuccess, vc.RetryReason,
		truncateText(vc.Snapshot.VisibleTextPrefix, 2000),
	)

	resp, err := p.client.Generate(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: "user", Content: user}},
		Temperature: 0,
		MaxTokens:   500,
		JSONMode:    true,
	})
	if err != nil {
		return Verdict{}, classifyLLMError(err), nil
	}
	p.record(resp)

	jsonStr, err := extractJSON(resp.Text)
	if err != nil {
		return Verdict{}, nil, fmt.Errorf("verify: %w", err)
	}
	var parsed struct {
		Verdict     string `json:"verdict"`
		Reason      string `json:"reason"`
		NextActions []struct {
			Action    string `json:"action"`
			Selector  string `json:"selector"`
			FieldType string `json:"field_type"`
			Value     string `json:"value"`
		} `json:"next_actions"`
	}
	if err := json.Unmarshal([]byte(removeJSONComments(jsonStr)), &parsed); err != nil {
		return Verdict{}, nil, fmt.Errorf("verify parse: %w", err)
	}

	v := Verdict{Kind: VerdictKind(parsed.Verdict), Reason: parsed.Reason}
	for _, a := range parsed.NextActions {
		v.NextActions = append(v.NextActions, Action{
			Kind:      ActionKind(a.Action),
			Selector:  a.Selector,
			FieldType: a.FieldType,
			Value:     a.Value,
		})
	}
	return v, nil, nil
}

func classifyLLMError(err error) *LLMFailure {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return &LLMFailure{Reason: LLMRateLimitExceeded, Message: msg}
	case strings.Contains(msg, "401"):
		return &LLMFailure{Reason: LLMInvalidAPIKey, Message: msg}
	case strings.Contains(msg, "403"):
		return &LLMFailure{Reason: LLMAccessDenied, Message: msg}
	default:
		return &LLMFailure{Reason: LLMGenericFailure, Message: msg}
	}
}

func hasFillableInput(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "type=\"text\"") || strings.Contains(lower, "type=\"email\"") ||
		strings.Contains(lower, "type='text'") || strings.Contains(lower, "type='email'") ||
		strings.Contains(lower, "name=\"email\"") || strings.Contains(lower, "name='email'")
}

func onlySearchForm(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "type=\"search\"") && !hasFillableInput(html)
}

func stepwiseSystemPrompt() string {
	return "You are a form-filling agent. Use ONLY selectors present in the visible inputs list below; " +
		"never invent a selector. Never click country/flag dropdowns. " +
		"For phone fields always set use_phone_number_only=true so the credential engine synthesises " +
		"a number matching the detected country; do not write phone digits yourself. " +
		"Never mark action=\"complete\" on step 1. Mark complete only after an unambiguous success phrase is visible. " +
		"Valid field_type values: " + validFieldTypes + ". " +
		"Respond as a single JSON object: {\"action\":\"fill_field|click|scroll|wait|complete\",\"selector\":\"...\"," +
		"\"field_type\":\"...\",\"value\":\"...\",\"use_phone_number_only\":false,\"seconds\":0,\"reasoning\":\"...\"}."
}

func buildStepwisePrompt(pc PlanContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step: %d\nURL: %s\n\n", pc.Step, pc.URL)
	fmt.Fprintf(&b, "Credentials: email=%s name=%s phone=%s country=%s\n\n",
		pc.Credentials.Email, pc.Credentials.FullName(), pc.Credentials.Phone, pc.DetectedCountryCode)

	b.WriteString("Visible inputs:\n")
	for _, in := range pc.Snapshot.Inputs {
		if !in.IsVisible && !in.IsHiddenSRonly {
			continue
		}
		fmt.Fprintf(&b, "- %s kind=%s label=%q form=%s\n", in.Selector, in.Kind, in.LabelText, in.FormIDRef)
	}

	b.WriteString("\nVisible buttons:\n")
	for _, btn := range pc.Snapshot.Buttons {
		cta := ""
		if btn.IsCTA {
			cta = " [CTA]"
		}
		fmt.Fprintf(&b, "- %s text=%q%s\n", btn.Selector, btn.Text, cta)
	}

	fmt.Fprintf(&b, "\nPage text sample: %s\n", truncateText(pc.Snapshot.VisibleTextPrefix, 1500))

	if len(pc.ActionHistory) > 0 {
		b.WriteString("\nLast actions:\n")
		for _, a := range pc.ActionHistory {
			fmt.Fprintf(&b, "- %s %s success=%v %s\n", a.Kind, a.Selector, a.Success, a.ErrorMessage)
		}
	}
	if len(pc.FieldTypesFilled) > 0 {
		fmt.Fprintf(&b, "\nAlready filled field types: %v\n", pc.FieldTypesFilled)
	}
	if len(pc.ErrorMessages) > 0 {
		fmt.Fprintf(&b, "\nCurrent error messages: %v\n", pc.ErrorMessages)
	}
	if len(pc.FailedSelectorHints) > 0 {
		fmt.Fprintf(&b, "\nRecently failed selectors: %v\n", pc.FailedSelectorHints)
	}
	if len(pc.NonExistentSelectors) > 0 {
		fmt.Fprintf(&b, "\nDo NOT use these selectors (verified absent): %v\n", pc.NonExistentSelectors)
	}
	if len(pc.CheckboxesChecked) > 0 {
		fmt.Fprintf(&b, "\nCheckboxes already checked: %v\n", pc.CheckboxesChecked)
	}
	if pc.ActiveFormSubmitSel != "" {
		fmt.Fprintf(&b, "\nActive form submit selector: %s\n", pc.ActiveFormSubmitSel)
	}
	return b.String()
}

func extractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}

// removeJSONComments strips // and /* */ comments a model sometimes
// emits despite being asked for strict JSON.
func removeJSONComments(jsonStr string) string {
	var result strings.Builder
	inStr := false
	esc := false
	i := 0
	for i < len(jsonStr) {
		ch := jsonStr[i]
		if esc {
			result.WriteByte(ch)
			esc = false
			i++
			continue
		}
		if ch == '\\' && inStr {
			result.WriteByte(ch)
			esc = true
			i++
			continue
		}
		if ch == '"' {
			inStr = !inStr
			result.WriteByte(ch)
			i++
			continue
		}
		if !inStr {
			if i < len(jsonStr)-1 && jsonStr[i] == '/' && jsonStr[i+1] == '/' {
				for i < len(jsonStr) && jsonStr[i] != '\n' {
					i++
				}
				continue
			}
			if i < len(jsonStr)-1 && jsonStr[i] == '/' && jsonStr[i+1] == '*' {
				i += 2
				for i < len(jsonStr)-1 {
					if jsonStr[i] == '*' && jsonStr[i+1] == '/' {
						i += 2
						break
					}
					i++
				}
				continue
			}
		}
		result.WriteByte(ch)
		i++
	}
	return result.String()
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
