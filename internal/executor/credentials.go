package executor

import (
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/credentials"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

// resolveValue is where C3 gets consulted. When the action names a
// field_type, a phone field is synthesised from the detected country
// rather than typed by the planner, and any other field_type except
// checkbox is resolved from the run's credentials regardless of what
// the planner put in Value. With no field_type (or no credentials),
// the planner's Value is used as-is.
func (e *Executor) resolveValue(action agent.Action, input *snapshot.InputDescriptor, st *agent.State, countrySignals []string) string {
	if e.creds == nil || action.FieldType == "" {
		return action.Value
	}
	if action.UsePhoneNumberOnly || (input != nil && input.Kind == snapshot.KindTel) {
		return e.resolvePhone(action, input, st, countrySignals)
	}
	if action.FieldType == "checkbox" {
		return action.Value
	}
	return e.creds.Resolve(action.FieldType)
}

// resolvePhone derives the country from every signal available on the
// page, not just the phone input's own label/placeholder: widget
// class names, country data-* attributes and +NN dial-code tokens
// collected from anywhere in the form carry more signal than the
// field itself usually does.
func (e *Executor) resolvePhone(action agent.Action, input *snapshot.InputDescriptor, st *agent.State, countrySignals []string) string {
	if st.DetectedCountryCode == "" {
		signals := []string{action.Value}
		if input != nil {
			signals = append(signals, input.LabelText, input.Placeholder)
		}
		signals = append(signals, countrySignals...)
		st.DetectedCountryCode = credentials.DetectCountryCode(signals)
		st.CountryCodeAttempts++
	}
	return e.creds.GeneratePhone(st.DetectedCountryCode)
}
