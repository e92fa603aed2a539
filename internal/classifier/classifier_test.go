package classifier

import (
	"testing"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

func TestClassifyAppStoreShortCircuits(t *testing.T) {
	snap := snapshot.PageSnapshot{URL: "https://apps.apple.com/us/app/foo/id123"}
	got := Classify(snap, NavigationContext{URL: snap.URL})
	if got.Class != ClassAppStore {
		t.Fatalf("Class = %q, want app_store", got.Class)
	}
}

func TestClassifyLoadErrorShortCircuits(t *testing.T) {
	snap := snapshot.PageSnapshot{URL: "https://example.com"}
	got := Classify(snap, NavigationContext{URL: snap.URL, LoadError: &LoadError{Reason: "dns"}})
	if got.Class != ClassLoadError {
		t.Fatalf("Class = %q, want load_error", got.Class)
	}
}

func TestClassifyAccountRegistrationIsLoginOnly(t *testing.T) {
	snap := snapshot.PageSnapshot{
		Inputs: []snapshot.InputDescriptor{
			{Kind: snapshot.KindEmail},
			{Kind: snapshot.KindPassword},
		},
	}
	got := Classify(snap, NavigationContext{})
	if got.Class != ClassLoginOnly {
		t.Fatalf("Class = %q, want login_only", got.Class)
	}
}

func TestClassifyPasswordWithConfirmIsNotLoginOnly(t *testing.T) {
	snap := snapshot.PageSnapshot{
		Inputs: []snapshot.InputDescriptor{
			{Kind: snapshot.KindEmail},
			{Kind: snapshot.KindPassword},
			{Kind: snapshot.KindPassword},
		},
	}
	got := Classify(snap, NavigationContext{})
	if got.Class == ClassLoginOnly {
		t.Fatalf("Class = login_only, want something else (confirm-password present)")
	}
}

func TestClassifyBlogDemotedToSignupWhenFormPresent(t *testing.T) {
	snap := snapshot.PageSnapshot{
		Article: snapshot.ArticleSignals{ArticleCount: 2, HasByline: true, HasCommentSection: true},
		Inputs: []snapshot.InputDescriptor{
			{Kind: snapshot.KindEmail, FormIDRef: "f"},
		},
		Forms: []snapshot.FormDescriptor{
			{
				StableFormID: "f",
				Inputs:       []snapshot.InputDescriptor{{Kind: snapshot.KindEmail, FormIDRef: "f"}},
				SubmitButtons: []snapshot.ButtonDescriptor{{Text: "Subscribe"}},
			},
		},
	}
	got := Classify(snap, NavigationContext{})
	if got.Class != ClassSignup {
		t.Fatalf("Class = %q, want signup (blog demoted)", got.Class)
	}
}

func TestClassifyBlogWithoutFormStaysBlog(t *testing.T) {
	snap := snapshot.PageSnapshot{
		Article: snapshot.ArticleSignals{ArticleCount: 2, HasByline: true, HasCommentSection: true, HasDateNode: true},
	}
	got := Classify(snap, NavigationContext{})
	if got.Class != ClassBlogArticle {
		t.Fatalf("Class = %q, want blog_article", got.Class)
	}
}

func TestClassifySignupViaNewsletterPhrase(t *testing.T) {
	snap := snapshot.PageSnapshot{
		VisibleTextPrefix: "join our newsletter for weekly digest",
		Inputs:            []snapshot.InputDescriptor{{Kind: snapshot.KindEmail}},
	}
	got := Classify(snap, NavigationContext{})
	if got.Class != ClassSignup {
		t.Fatalf("Class = %q, want signup", got.Class)
	}
}

func TestClassifyLandingWithNavWhenNoFormButCTAs(t *testing.T) {
	snap := snapshot.PageSnapshot{
		Buttons: []snapshot.ButtonDescriptor{{Text: "Learn More", IsCTA: true}},
	}
	got := Classify(snap, NavigationContext{})
	if got.Class != ClassLandingWithNav {
		t.Fatalf("Class = %q, want landing_with_nav", got.Class)
	}
	if len(got.NavigationButtons) != 1 {
		t.Fatalf("expected 1 navigation button, got %d", len(got.NavigationButtons))
	}
}

func TestClassifyBareLandingNoForm(t *testing.T) {
	snap := snapshot.PageSnapshot{}
	got := Classify(snap, NavigationContext{})
	if got.Class != ClassLandingNoForm {
		t.Fatalf("Class = %q, want landing_no_form", got.Class)
	}
}

func TestClassifyPaymentIsInformationalNotSkip(t *testing.T) {
	snap := snapshot.PageSnapshot{
		VisibleTextPrefix: "enter your credit card to continue",
	}
	got := Classify(snap, NavigationContext{})
	if got.Class != ClassPaymentRequired {
		t.Fatalf("Class = %q, want payment_required", got.Class)
	}
}
