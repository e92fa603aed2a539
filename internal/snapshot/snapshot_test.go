package snapshot

import "testing"

func TestSynthesizeSelectorPriority(t *testing.T) {
	cases := []struct {
		name           string
		id, field, typ, tag string
		want           string
	}{
		{"id wins", "signup-email", "email", "email", "input", "#signup-email"},
		{"name wins over type", "", "email", "email", "input", "[name='email']"},
		{"type fallback", "", "", "email", "input", "input[type='email']"},
		{"tag fallback", "", "", "", "select", "select"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := synthesizeSelector(c.id, c.field, c.typ, c.tag); got != c.want {
				t.Fatalf("synthesizeSelector(%q,%q,%q,%q) = %q, want %q", c.id, c.field, c.typ, c.tag, got, c.want)
			}
		})
	}
}

func TestScoreButtonClassifiesCTA(t *testing.T) {
	cases := []struct {
		text, class string
		wantCTA     bool
	}{
		{"Learn More", "", true},
		{"Download Now", "", true},
		{"Subscribe", "", false},
		{"Sign Up", "", false},
		{"Explore", "cta-button", true},
		{"X", "", false},
	}
	for _, c := range cases {
		t.Run(c.text, func(t *testing.T) {
			score := scoreButton(c.text, c.class)
			isCTA := score >= 2
			if isCTA != c.wantCTA {
				t.Fatalf("scoreButton(%q) = %d (isCTA=%v), want isCTA=%v", c.text, score, isCTA, c.wantCTA)
			}
		})
	}
}

func TestIsDialCodeButtonFiltersFlagAndCodeButtons(t *testing.T) {
	for _, text := range []string{"+1", "92", "+", "1"} {
		if !isDialCodeButton(text) {
			t.Fatalf("isDialCodeButton(%q) = false, want true", text)
		}
	}
	for _, text := range []string{"Submit", "Sign Up Now"} {
		if isDialCodeButton(text) {
			t.Fatalf("isDialCodeButton(%q) = true, want false", text)
		}
	}
}

func TestResolveSubmitButtonPriority(t *testing.T) {
	submitInput := ButtonDescriptor{Text: "", Selector: "input[type='submit']", IsLikelySubmit: true}
	dialCode := ButtonDescriptor{Text: "+1", Selector: "#dial", IsLikelySubmit: false}
	signUp := ButtonDescriptor{Text: "Sign Up", Selector: "#signup", IsLikelySubmit: true}
	plain := ButtonDescriptor{Text: "Maybe Later", Selector: "#maybe", IsLikelySubmit: false}

	got := resolveSubmitButton([]ButtonDescriptor{dialCode, signUp, submitInput}, nil)
	if got == nil || got.Selector != "input[type='submit']" {
		t.Fatalf("expected input[type=submit] priority, got %+v", got)
	}

	got = resolveSubmitButton([]ButtonDescriptor{dialCode, signUp}, nil)
	if got == nil || got.Selector != "#signup" {
		t.Fatalf("expected submit-keyword button, got %+v", got)
	}

	got = resolveSubmitButton([]ButtonDescriptor{dialCode, plain}, nil)
	if got == nil || got.Selector != "#maybe" {
		t.Fatalf("expected last non-dial-code button fallback, got %+v", got)
	}

	got = resolveSubmitButton([]ButtonDescriptor{dialCode}, nil)
	if got != nil {
		t.Fatalf("expected nil when only dial-code buttons present, got %+v", got)
	}
}

func TestAssembleSetsFormIDRefAndSubmitRef(t *testing.T) {
	raw := rawPage{
		URL:   "https://example.com/signup",
		Title: "Sign up",
		Forms: []rawForm{{Index: 0, ID: "signup-form", Method: "post"}},
		Inputs: []rawInput{
			{Tag: "input", Type: "email", ID: "email", Visible: true, FormIndex: 0},
		},
		Buttons: []rawButton{
			{Tag: "button", Text: "Sign Up", IsSubmitType: true, FormIndex: 0},
		},
	}
	snap := assemble(raw)
	if len(snap.Forms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(snap.Forms))
	}
	f := snap.Forms[0]
	if f.StableFormID != "signup-form" {
		t.Fatalf("StableFormID = %q, want signup-form", f.StableFormID)
	}
	if len(f.Inputs) != 1 || f.Inputs[0].FormIDRef != "signup-form" {
		t.Fatalf("input form ref not set: %+v", f.Inputs)
	}
	if len(f.SubmitButtons) != 1 {
		t.Fatalf("expected a resolved submit button")
	}
	if f.Inputs[0].FormSubmitSelectorRef == "" {
		t.Fatalf("expected input to carry submit selector ref")
	}
}

func TestContainsAnyDetectsSuccessHint(t *testing.T) {
	if !containsAny("thank you for subscribing", strongSuccessPhrases) {
		t.Fatalf("expected success phrase match")
	}
	if containsAny("please try again", strongSuccessPhrases) {
		t.Fatalf("did not expect success phrase match")
	}
}
