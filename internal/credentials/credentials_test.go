package credentials

import (
	"strings"
	"testing"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/config"
)

func TestResolveKnownAndUnknownFieldTypes(t *testing.T) {
	e := New(config.Credentials{Email: "x@y.z", FirstName: "Ada"}, 1)
	if got := e.Resolve("email"); got != "x@y.z" {
		t.Fatalf("Resolve(email) = %q", got)
	}
	if got := e.Resolve("first_name"); got != "Ada" {
		t.Fatalf("Resolve(first_name) = %q", got)
	}
	if got := e.Resolve("something_weird"); got != "AutoFill" {
		t.Fatalf("Resolve(unknown) = %q, want default", got)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	e := New(config.Credentials{Email: "x@y.z"}, 1)
	a := e.Resolve("email")
	b := e.Resolve("email")
	if a != b {
		t.Fatalf("Resolve not idempotent: %q vs %q", a, b)
	}
}

func TestDetectCountryCodeDefaultsToUS(t *testing.T) {
	if got := DetectCountryCode(nil); got != "1" {
		t.Fatalf("DetectCountryCode(nil) = %q, want 1", got)
	}
	if got := DetectCountryCode([]string{"unknown blob"}); got != "1" {
		t.Fatalf("DetectCountryCode(unrecognised) = %q, want 1", got)
	}
}

func TestDetectCountryCodeFromName(t *testing.T) {
	if got := DetectCountryCode([]string{"United Kingdom"}); got != "44" {
		t.Fatalf("DetectCountryCode(UK) = %q", got)
	}
	if got := DetectCountryCode([]string{"+92 300 1234567"}); got != "92" {
		t.Fatalf("DetectCountryCode(+92) = %q", got)
	}
}

func TestGeneratePhonePreservesCountryPrefix(t *testing.T) {
	e := New(config.Credentials{}, 42)
	for code, profile := range countryTable {
		national := e.GeneratePhone(code)
		matched := false
		for _, p := range profile.prefixes {
			if strings.HasPrefix(national, p) {
				matched = true
				break
			}
		}
		if !matched {
			t.Fatalf("GeneratePhone(%s) = %q, no matching prefix in %v", code, national, profile.prefixes)
		}
		if len(national) != profile.length {
			t.Fatalf("GeneratePhone(%s) = %q, want length %d", code, national, profile.length)
		}
	}
}

func TestGeneratePhoneUnknownCountryFallsBackToUS(t *testing.T) {
	e := New(config.Credentials{}, 7)
	national := e.GeneratePhone("999")
	if len(national) != countryTable["1"].length {
		t.Fatalf("fallback length = %d, want %d", len(national), countryTable["1"].length)
	}
}
