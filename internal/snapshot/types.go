// Package snapshot implements the Page Observer: it extracts a
// normalised, immutable view of the live DOM for the planner and
// guard to reason over.
package snapshot

// InputKind enumerates the field shapes the rest of the agent reasons
// about.
type InputKind string

const (
	KindText         InputKind = "text"
	KindEmail        InputKind = "email"
	KindTel          InputKind = "tel"
	KindPassword     InputKind = "password"
	KindCheckbox     InputKind = "checkbox"
	KindRadio        InputKind = "radio"
	KindSelect       InputKind = "select"
	KindDivCheckbox  InputKind = "div-checkbox"
)

// FormDescriptor is one <form> (or form-like container) on the page.
type FormDescriptor struct {
	StableFormID  string
	Selector      string
	Action        string
	Method        string
	Inputs        []InputDescriptor
	SubmitButtons []ButtonDescriptor
}

// InputDescriptor is one fillable element.
type InputDescriptor struct {
	Kind                  InputKind
	Selector              string
	Placeholder           string
	LabelText             string
	IsVisible             bool
	IsHiddenSRonly        bool
	WrappedInLabel        bool
	Checked               bool
	FormIDRef             string // empty if not inside any known form
	FormSubmitSelectorRef string
}

// ButtonDescriptor is one clickable control.
type ButtonDescriptor struct {
	Text         string
	Selector     string
	IsCTA        bool
	CTAScore     int
	IsLikelySubmit bool
	FormIDRef    string
}

// CaptchaKind enumerates the challenge types the observer can name.
type CaptchaKind string

const (
	CaptchaNone             CaptchaKind = "none"
	CaptchaRecaptchaV2      CaptchaKind = "recaptcha_v2"
	CaptchaRecaptchaChall   CaptchaKind = "recaptcha_challenge"
	CaptchaHCaptcha         CaptchaKind = "hcaptcha"
	CaptchaTurnstile        CaptchaKind = "turnstile"
	CaptchaErrorText        CaptchaKind = "error_text"
)

// CaptchaInfo describes any visible challenge widget.
type CaptchaInfo struct {
	Present bool
	Visible bool
	Kind    CaptchaKind
	Sitekey string
}

// OverlayInfo describes any modal/overlay currently shown.
type OverlayInfo struct {
	Present           bool
	IsSuccessText     bool
	IsRecommendation  bool
	HasIframe         bool
	IframeSrc         string
	HasCaptchaContent bool
	HasErrorText      bool
	CloseSelector     string
}

// ArticleSignals carries the structural facts the classifier uses to
// recognise blog/article pages.
type ArticleSignals struct {
	ArticleCount       int
	HasPostContentClass bool
	HasByline          bool
	HasCommentSection  bool
	HasDateNode        bool
}

// PageSnapshot is the full normalised observation of one page.
type PageSnapshot struct {
	URL               string
	Title             string
	VisibleTextPrefix string // lowercased, <= ~3KB
	Forms             []FormDescriptor
	Inputs            []InputDescriptor
	Buttons           []ButtonDescriptor
	ErrorMessages     []string
	Captcha           CaptchaInfo
	Overlay           OverlayInfo
	SuccessHint       bool
	Article           ArticleSignals
	HasOAuthAffordance bool
	CountrySignals    []string // phone-widget classes, dial-code tokens, country data-* values seen anywhere in the form
}
