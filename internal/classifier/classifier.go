// Package classifier decides what kind of page a snapshot represents
// before the agent loop spends a step on it.
package classifier

import (
	"strings"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

// PageClass enumerates the categories the loop branches on.
type PageClass string

const (
	ClassSignup             PageClass = "signup"
	ClassLoginOnly          PageClass = "login_only"
	ClassBlogArticle        PageClass = "blog_article"
	ClassLandingNoForm      PageClass = "landing_no_form"
	ClassLandingWithNav     PageClass = "landing_with_nav"
	ClassPaymentRequired    PageClass = "payment_required"
	ClassAppStore           PageClass = "app_store"
	ClassLoadError          PageClass = "load_error"
)

// LoadError describes a navigation failure reason.
type LoadError struct {
	Reason string // ssl, dns, refused, timeout, reset, too_many_redirects, empty_response, aborted
}

// NavigationContext carries facts about the navigation that produced
// the snapshot, separate from the DOM content itself.
type NavigationContext struct {
	URL       string
	LoadError *LoadError
}

// Result is the classifier's verdict plus any buttons worth keeping
// around for a landing-with-nav fallback.
type Result struct {
	Class            PageClass
	NavigationButtons []snapshot.ButtonDescriptor
}

var appStoreDomains = []string{
	"apps.apple.com", "play.google.com", "itunes.apple.com",
	"microsoft.com/store", "apps.microsoft.com",
}

var appStoreTitlePatterns = []string{
	"on the app store", "- apps on google play", "download on the app store",
}

var newsletterPhrases = []string{
	"newsletter", "subscribe", "stay updated", "stay in the loop", "weekly digest",
}

var termsOrSignupPhrases = []string{
	"i agree", "terms of service", "privacy policy", "sign up", "create account", "get started",
}

// Classify implements the precedence chain: app-store, load error,
// account registration, blog/article, signup positives, landing with
// nav, and finally a bare landing page.
func Classify(snap snapshot.PageSnapshot, nav NavigationContext) Result {
	if isAppStore(snap, nav) {
		return Result{Class: ClassAppStore}
	}
	if nav.LoadError != nil {
		return Result{Class: ClassLoadError}
	}
	if isAccountRegistration(snap) {
		return Result{Class: ClassLoginOnly}
	}

	isBlog := isBlogArticle(snap)
	isSignup, signupButtons := isSignupPositive(snap)

	if isBlog && !isSignup {
		return Result{Class: ClassBlogArticle}
	}
	if isSignup {
		return Result{Class: ClassSignup, NavigationButtons: signupButtons}
	}
	if hasPaymentAffordances(snap) {
		return Result{Class: ClassPaymentRequired}
	}
	if len(snap.Forms) == 0 {
		var ctas []snapshot.ButtonDescriptor
		for _, b := range snap.Buttons {
			if b.IsCTA {
				ctas = append(ctas, b)
			}
		}
		if len(ctas) > 0 {
			return Result{Class: ClassLandingWithNav, NavigationButtons: ctas}
		}
		return Result{Class: ClassLandingNoForm}
	}
	return Result{Class: ClassLandingNoForm}
}

func isAppStore(snap snapshot.PageSnapshot, nav NavigationContext) bool {
	u := strings.ToLower(nav.URL)
	if u == "" {
		u = strings.ToLower(snap.URL)
	}
	for _, d := range appStoreDomains {
		if strings.Contains(u, d) {
			return true
		}
	}
	title := strings.ToLower(snap.Title)
	for _, p := range appStoreTitlePatterns {
		if strings.Contains(title, p) {
			return true
		}
	}
	return false
}

func isAccountRegistration(snap snapshot.PageSnapshot) bool {
	if snap.HasOAuthAffordance && hasEmailInput(snap) {
		return true
	}
	var hasPassword, hasConfirmPassword, hasEmail bool
	for _, in := range snap.Inputs {
		switch in.Kind {
		case snapshot.KindPassword:
			if hasPassword {
				hasConfirmPassword = true
			}
			hasPassword = true
		case snapshot.KindEmail:
			hasEmail = true
		}
	}
	return hasPassword && !hasConfirmPassword && hasEmail
}

func hasEmailInput(snap snapshot.PageSnapshot) bool {
	for _, in := range snap.Inputs {
		if in.Kind == snapshot.KindEmail {
			return true
		}
	}
	return false
}

func isBlogArticle(snap snapshot.PageSnapshot) bool {
	count := 0
	if snap.Article.ArticleCount >= 1 {
		count++
	}
	if snap.Article.ArticleCount >= 2 {
		count++
	}
	if snap.Article.HasPostContentClass {
		count++
	}
	if snap.Article.HasByline {
		count++
	}
	if snap.Article.HasCommentSection {
		count++
	}
	if snap.Article.HasDateNode {
		count++
	}
	if strings.Contains(snap.VisibleTextPrefix, "read more") && strings.Contains(snap.VisibleTextPrefix, "comments") {
		count++
	}
	return count >= 2
}

// isSignupPositive implements the "any sufficient" positive indicator
// set named in the spec.
func isSignupPositive(snap snapshot.PageSnapshot) (bool, []snapshot.ButtonDescriptor) {
	if !hasEmailInput(snap) {
		var passOK, confirmOK bool
		for _, in := range snap.Inputs {
			if in.Kind == snapshot.KindPassword {
				if passOK {
					confirmOK = true
				}
				passOK = true
			}
		}
		return passOK && confirmOK, nil
	}

	text := snap.VisibleTextPrefix
	if containsAny(text, newsletterPhrases) {
		return true, nil
	}
	if hasNameOrPhoneInput(snap) {
		return true, nil
	}
	if hasCheckboxInput(snap) || containsAny(text, termsOrSignupPhrases) {
		return true, nil
	}
	if len(snap.Forms) > 0 {
		for _, f := range snap.Forms {
			if len(f.SubmitButtons) > 0 {
				hasFormEmail := false
				for _, in := range f.Inputs {
					if in.Kind == snapshot.KindEmail {
						hasFormEmail = true
						break
					}
				}
				if hasFormEmail {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func hasNameOrPhoneInput(snap snapshot.PageSnapshot) bool {
	for _, in := range snap.Inputs {
		if in.Kind == snapshot.KindTel {
			return true
		}
		lower := strings.ToLower(in.LabelText + " " + in.Placeholder)
		if strings.Contains(lower, "name") {
			return true
		}
	}
	return false
}

func hasCheckboxInput(snap snapshot.PageSnapshot) bool {
	for _, in := range snap.Inputs {
		if in.Kind == snapshot.KindCheckbox || in.Kind == snapshot.KindDivCheckbox {
			return true
		}
	}
	return false
}

func hasPaymentAffordances(snap snapshot.PageSnapshot) bool {
	for _, in := range snap.Inputs {
		lower := strings.ToLower(in.LabelText + " " + in.Placeholder)
		if strings.Contains(lower, "card number") || strings.Contains(lower, "cvv") || strings.Contains(lower, "cvc") {
			return true
		}
	}
	return strings.Contains(snap.VisibleTextPrefix, "credit card") || strings.Contains(snap.VisibleTextPrefix, "payment method")
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
