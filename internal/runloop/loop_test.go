package runloop

import (
	"errors"
	"strings"
	"testing"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

func TestIsAppStoreURL(t *testing.T) {
	cases := map[string]bool{
		"https://apps.apple.com/us/app/foo/id123": true,
		"https://play.google.com/store/apps/details?id=com.foo": true,
		"https://itunes.apple.com/app/foo":                      true,
		"https://example.com/signup":                            false,
		"":                                                       false,
	}
	for url, want := range cases {
		if got := isAppStoreURL(url); got != want {
			t.Errorf("isAppStoreURL(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestIsUnwantedPage(t *testing.T) {
	cases := []struct {
		snap snapshot.PageSnapshot
		want bool
	}{
		{snapshot.PageSnapshot{URL: "https://shop.example.com/cart", Title: "Cart"}, true},
		{snapshot.PageSnapshot{URL: "https://shop.example.com/checkout/step1"}, true},
		{snapshot.PageSnapshot{URL: "https://shop.example.com/pay", Title: "Payment details"}, true},
		{snapshot.PageSnapshot{URL: "https://example.com/newsletter", Title: "Subscribe"}, false},
	}
	for _, c := range cases {
		if got := isUnwantedPage(c.snap); got != c.want {
			t.Errorf("isUnwantedPage(%+v) = %v, want %v", c.snap, got, c.want)
		}
	}
}

func TestClassifyNavError(t *testing.T) {
	cases := map[string]string{
		"net::ERR_CERT_AUTHORITY_INVALID":     "ssl",
		"net::ERR_NAME_NOT_RESOLVED":          "dns",
		"net::ERR_CONNECTION_REFUSED":         "refused",
		"context deadline exceeded: timeout":  "timeout",
		"net::ERR_CONNECTION_RESET":           "reset",
		"net::ERR_TOO_MANY_REDIRECTS":         "too_many_redirects",
		"net::ERR_EMPTY_RESPONSE":             "empty_response",
		"net::ERR_ABORTED":                    "aborted",
		"something entirely unrecognized":     "aborted",
	}
	for msg, want := range cases {
		if got := classifyNavError(errors.New(msg)); got != want {
			t.Errorf("classifyNavError(%q) = %q, want %q", msg, got, want)
		}
	}
}

func TestShouldVerify(t *testing.T) {
	st := agent.NewState()
	st.Step = 2
	st.SubmitAttempts = 1
	if shouldVerify(st) {
		t.Error("shouldVerify should be false before submitsBeforeVerify submits")
	}

	st.SubmitAttempts = submitsBeforeVerify
	if !shouldVerify(st) {
		t.Error("shouldVerify should be true once submitsBeforeVerify submits happened without confirmation")
	}

	st.FormSubmitted = true
	if shouldVerify(st) {
		t.Error("shouldVerify should be false once the form is confirmed submitted")
	}

	st.FormSubmitted = false
	st.Step = 1
	if shouldVerify(st) {
		t.Error("shouldVerify should be false on step 1")
	}
}

func TestConsecutiveSelectorFailures(t *testing.T) {
	st := agent.NewState()
	st.RecordAction(agent.ActionRecord{Kind: agent.ActionClick, Selector: "#a", Success: true})
	st.RecordAction(agent.ActionRecord{Kind: agent.ActionClick, Selector: "#b", Success: false})
	st.RecordAction(agent.ActionRecord{Kind: agent.ActionClick, Selector: "#b", Success: false})
	st.RecordAction(agent.ActionRecord{Kind: agent.ActionClick, Selector: "#b", Success: false})

	if got := consecutiveSelectorFailures(st, "#b"); got != 3 {
		t.Errorf("consecutiveSelectorFailures(#b) = %d, want 3", got)
	}
	if got := consecutiveSelectorFailures(st, "#a"); got != 0 {
		t.Errorf("consecutiveSelectorFailures(#a) = %d, want 0", got)
	}

	st.RecordAction(agent.ActionRecord{Kind: agent.ActionClick, Selector: "#b", Success: true})
	if got := consecutiveSelectorFailures(st, "#b"); got != 0 {
		t.Errorf("consecutiveSelectorFailures(#b) after success = %d, want 0", got)
	}
}

func TestRenderSelectorSurface(t *testing.T) {
	snap := snapshot.PageSnapshot{
		Inputs: []snapshot.InputDescriptor{
			{Selector: "#email", Kind: snapshot.KindEmail},
		},
		Buttons: []snapshot.ButtonDescriptor{
			{Selector: "#submit", Text: "Subscribe"},
		},
	}
	surface := renderSelectorSurface(snap)
	if !strings.Contains(surface, "#email") || !strings.Contains(surface, "#submit") || !strings.Contains(surface, "Subscribe") {
		t.Errorf("renderSelectorSurface missing expected content: %q", surface)
	}
}
