package agent

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONFindsOuterObject(t *testing.T) {
	raw := `Here is my answer:\n{"action":"click","selector":"#go"}\nThanks.`
	got, err := extractJSON(raw)
	if err != nil {
		t.Fatalf("extractJSON error: %v", err)
	}
	if got != `{"action":"click","selector":"#go"}` {
		t.Fatalf("extractJSON = %q", got)
	}
}

func TestExtractJSONHandlesNestedBraces(t *testing.T) {
	raw := `{"action":"fill_field","meta":{"nested":true}}`
	got, err := extractJSON(raw)
	if err != nil {
		t.Fatalf("extractJSON error: %v", err)
	}
	if got != raw {
		t.Fatalf("extractJSON = %q, want %q", got, raw)
	}
}

func TestRemoveJSONCommentsStripsLineAndBlockComments(t *testing.T) {
	raw := `{"a":1, // trailing comment
"b":2 /* block */}`
	got := removeJSONComments(raw)
	if got == raw {
		t.Fatalf("expected comments to be stripped")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("cleaned JSON still invalid: %v, got=%q", err, got)
	}
}

func TestHasFillableInputDetectsEmailNotSearch(t *testing.T) {
	if !hasFillableInput(`<input type="email" name="email">`) {
		t.Fatalf("expected email input to be fillable")
	}
	if hasFillableInput(`<input type="search">`) {
		t.Fatalf("expected search-only input to not be fillable")
	}
}

func TestClassifyLLMErrorMapsStatusCodes(t *testing.T) {
	cases := map[string]LLMFailureReason{
		"anthropic 429: rate limited":    LLMRateLimitExceeded,
		"anthropic 401: bad key":         LLMInvalidAPIKey,
		"anthropic 403: access denied":   LLMAccessDenied,
		"anthropic 500: server error":    LLMGenericFailure,
	}
	for msg, want := range cases {
		got := classifyLLMError(errString(msg))
		if got.Reason != want {
			t.Fatalf("classifyLLMError(%q) = %q, want %q", msg, got.Reason, want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
