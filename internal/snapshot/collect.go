package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/browser"
)

// ObservationError is returned only on browser/page teardown; any
// other DOM-shape anomaly yields a best-effort empty snapshot instead,
// per the observer's fault contract.
type ObservationError struct {
	Cause error
}

func (e *ObservationError) Error() string { return fmt.Sprintf("observation: %v", e.Cause) }
func (e *ObservationError) Unwrap() error { return e.Cause }

type rawForm struct {
	Index  int    `json:"index"`
	ID     string `json:"id"`
	Action string `json:"action"`
	Method string `json:"method"`
}

type rawInput struct {
	Tag            string    `json:"tag"`
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Placeholder    string    `json:"placeholder"`
	AriaLabel      string    `json:"ariaLabel"`
	Label          string    `json:"label"`
	Visible        bool      `json:"visible"`
	HiddenSR       bool      `json:"hiddenSR"`
	WrappedInLabel bool      `json:"wrappedInLabel"`
	Checked        bool      `json:"checked"`
	FormIndex      int       `json:"formIndex"`
	BBox           []float64 `json:"bbox"`
}

type rawButton struct {
	Tag          string    `json:"tag"`
	Type         string    `json:"type"`
	Text         string    `json:"text"`
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsSubmitType bool      `json:"isSubmitType"`
	FormIndex    int       `json:"formIndex"`
	BBox         []float64 `json:"bbox"`
	ClassName    string    `json:"className"`
}

type rawCaptcha struct {
	Present bool   `json:"present"`
	Visible bool   `json:"visible"`
	Kind    string `json:"kind"`
	Sitekey string `json:"sitekey"`
}

type rawOverlay struct {
	Present       bool   `json:"present"`
	Text          string `json:"text"`
	HasIframe     bool   `json:"hasIframe"`
	IframeSrc     string `json:"iframeSrc"`
	CloseSelector string `json:"closeSelector"`
}

type rawArticle struct {
	ArticleCount        int  `json:"articleCount"`
	HasPostContentClass bool `json:"hasPostContentClass"`
	HasByline           bool `json:"hasByline"`
	HasCommentSection   bool `json:"hasCommentSection"`
	HasDateNode         bool `json:"hasDateNode"`
}

type rawPage struct {
	URL            string      `json:"url"`
	Title          string      `json:"title"`
	BodyText       string      `json:"bodyText"`
	Forms          []rawForm   `json:"forms"`
	Inputs         []rawInput  `json:"inputs"`
	Buttons        []rawButton `json:"buttons"`
	Errors         []string    `json:"errors"`
	Captcha        rawCaptcha  `json:"captcha"`
	Overlay        rawOverlay  `json:"overlay"`
	Article        rawArticle  `json:"article"`
	OAuth          bool        `json:"oauth"`
	CountrySignals []string    `json:"countrySignals"`
}

// submitKeywords mirrors the distilled spec's closed submit-keyword
// set, ported from the original form_logic.py; scoreButton also uses
// it as its negative-word list.
var submitKeywords = []string{
	"submit", "sign up", "signup", "register", "subscribe",
	"join", "send", "continue", "next", "create", "get started",
}

var strongSuccessPhrases = []string{
	"thank you", "thanks for", "you're in", "successfully registered",
	"registration complete", "welcome", "check your email", "check your inbox",
	"confirmation sent", "thanks for registering", "successfully subscribed",
	"you are subscribed", "subscription confirmed", "all set", "you're all set",
	"we'll be in touch", "success!", "congratulations", "almost done",
}

// StrongSuccessPhrases is the closed success-phrase set shared with
// the guard's oracle-rescue check and the oracle package, so the
// phrase list has one source of truth instead of three copies.
var StrongSuccessPhrases = strongSuccessPhrases

// SuccessURLKeywords are the URL substrings that the guard's
// stuck-loop rescue treats as a success sign on their own, without
// matching page text.
var SuccessURLKeywords = []string{"thank", "success", "confirm", "welcome", "registered"}

// Collect runs the scripted DOM query and assembles a PageSnapshot.
func Collect(ctx context.Context, ctrl browser.Controller) (PageSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return PageSnapshot{}, &ObservationError{Cause: err}
	}
	page := ctrl.Page()
	if page == nil {
		return PageSnapshot{}, &ObservationError{Cause: fmt.Errorf("no active page")}
	}

	val, err := page.Evaluate(collectScript)
	if err != nil {
		// A torn-down page/context is the only fatal case; any other
		// DOM-shape anomaly falls through to a best-effort empty snapshot.
		if isTeardownError(err) {
			return PageSnapshot{}, &ObservationError{Cause: err}
		}
		return PageSnapshot{URL: safeURL(page), Title: safeTitle(page)}, nil
	}

	raw, err := decodeRawPage(val)
	if err != nil {
		return PageSnapshot{URL: safeURL(page), Title: safeTitle(page)}, nil
	}

	return assemble(raw), nil
}

// CollectSimplifiedHTML runs simplifiedHTMLScript to produce the
// form-only HTML batch_plan needs (spec §4.4(b)), distinct from the
// full-page VisibleTextPrefix Collect assembles.
func CollectSimplifiedHTML(ctx context.Context, ctrl browser.Controller) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ObservationError{Cause: err}
	}
	page := ctrl.Page()
	if page == nil {
		return "", &ObservationError{Cause: fmt.Errorf("no active page")}
	}
	val, err := page.Evaluate(simplifiedHTMLScript)
	if err != nil {
		if isTeardownError(err) {
			return "", &ObservationError{Cause: err}
		}
		return "", nil
	}
	html, _ := val.(string)
	return html, nil
}

func isTeardownError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "context destroyed") ||
		strings.Contains(msg, "execution context was destroyed") ||
		strings.Contains(msg, "browser has been closed")
}

func safeURL(page interface{ URL() string }) string {
	defer func() { recover() }()
	return page.URL()
}

func safeTitle(page interface{ Title() (string, error) }) string {
	defer func() { recover() }()
	t, _ := page.Title()
	return t
}

// decodeRawPage re-marshals the dynamic JSON value Evaluate returns
// into the typed rawPage struct.
func decodeRawPage(val any) (rawPage, error) {
	var raw rawPage
	data, err := json.Marshal(val)
	if err != nil {
		return raw, err
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return raw, err
	}
	return raw, nil
}

func assemble(raw rawPage) PageSnapshot {
	formIDs := make([]string, len(raw.Forms))
	for i, f := range raw.Forms {
		formIDs[i] = stableFormID(f, i)
	}

	inputsByForm := make(map[int][]InputDescriptor)
	var allInputs []InputDescriptor
	for _, in := range raw.Inputs {
		d := InputDescriptor{
			Kind:           classifyInputKind(in),
			Selector:       synthesizeSelector(in.ID, in.Name, in.Type, in.Tag),
			Placeholder:    in.Placeholder,
			LabelText:      firstNonEmpty(in.Label, in.AriaLabel),
			IsVisible:      in.Visible,
			IsHiddenSRonly: in.HiddenSR,
			WrappedInLabel: in.WrappedInLabel,
			Checked:        in.Checked,
		}
		if in.FormIndex >= 0 && in.FormIndex < len(formIDs) {
			d.FormIDRef = formIDs[in.FormIndex]
			inputsByForm[in.FormIndex] = append(inputsByForm[in.FormIndex], d)
		}
		allInputs = append(allInputs, d)
	}

	buttonsByForm := make(map[int][]ButtonDescriptor)
	var allButtons []ButtonDescriptor
	for _, btn := range raw.Buttons {
		score := scoreButton(btn.Text, btn.ClassName)
		d := ButtonDescriptor{
			Text:           btn.Text,
			Selector:       synthesizeButtonSelector(btn.ID, btn.Name, btn.Tag, btn.Text),
			CTAScore:       score,
			IsCTA:          score >= 2,
			IsLikelySubmit: isLikelySubmitText(btn.Text) && !isDialCodeButton(btn.Text),
		}
		if btn.IsSubmitType {
			d.IsLikelySubmit = true
		}
		if btn.FormIndex >= 0 && btn.FormIndex < len(formIDs) {
			d.FormIDRef = formIDs[btn.FormIndex]
			buttonsByForm[btn.FormIndex] = append(buttonsByForm[btn.FormIndex], d)
		}
		allButtons = append(allButtons, d)
	}

	var forms []FormDescriptor
	for i, f := range raw.Forms {
		fd := FormDescriptor{
			StableFormID: formIDs[i],
			Selector:     formSelector(f, i),
			Action:       f.Action,
			Method:       f.Method,
			Inputs:       inputsByForm[i],
		}
		submit := resolveSubmitButton(buttonsByForm[i], inputsByForm[i])
		if submit != nil {
			fd.SubmitButtons = []ButtonDescriptor{*submit}
			for j := range fd.Inputs {
				fd.Inputs[j].FormSubmitSelectorRef = submit.Selector
			}
		}
		forms = append(forms, fd)
	}

	visiblePrefix := strings.ToLower(raw.BodyText)
	if len(visiblePrefix) > 3000 {
		visiblePrefix = visiblePrefix[:3000]
	}

	return PageSnapshot{
		URL:               raw.URL,
		Title:             raw.Title,
		VisibleTextPrefix: visiblePrefix,
		Forms:             forms,
		Inputs:            allInputs,
		Buttons:           allButtons,
		ErrorMessages:     raw.Errors,
		Captcha:           classifyCaptcha(raw.Captcha),
		Overlay:           classifyOverlay(raw.Overlay),
		SuccessHint:       containsAny(visiblePrefix, strongSuccessPhrases),
		Article: ArticleSignals{
			ArticleCount:        raw.Article.ArticleCount,
			HasPostContentClass: raw.Article.HasPostContentClass,
			HasByline:           raw.Article.HasByline,
			HasCommentSection:   raw.Article.HasCommentSection,
			HasDateNode:         raw.Article.HasDateNode,
		},
		HasOAuthAffordance: raw.OAuth,
		CountrySignals:     raw.CountrySignals,
	}
}

func stableFormID(f rawForm, index int) string {
	if f.ID != "" {
		return f.ID
	}
	return "form-" + strconv.Itoa(index)
}

func formSelector(f rawForm, index int) string {
	if f.ID != "" {
		return "#" + f.ID
	}
	return fmt.Sprintf("form:nth-of-type(%d)", index+1)
}

// synthesizeSelector implements the deterministic priority: id, then
// name attribute, then a type/tag fallback.
func synthesizeSelector(id, name, typ, tag string) string {
	if id != "" {
		return "#" + id
	}
	if name != "" {
		return fmt.Sprintf("[name='%s']", name)
	}
	if typ != "" && tag == "input" {
		return fmt.Sprintf("input[type='%s']", typ)
	}
	return tag
}

func synthesizeButtonSelector(id, name, tag, text string) string {
	if id != "" {
		return "#" + id
	}
	if name != "" {
		return fmt.Sprintf("[name='%s']", name)
	}
	if text != "" {
		return fmt.Sprintf("%s:has-text('%s')", tag, strings.TrimSpace(text))
	}
	return tag
}

func classifyInputKind(in rawInput) InputKind {
	switch strings.ToLower(in.Tag) {
	case "select":
		return KindSelect
	case "textarea":
		return KindText
	}
	switch strings.ToLower(in.Type) {
	case "email":
		return KindEmail
	case "tel":
		return KindTel
	case "password":
		return KindPassword
	case "checkbox":
		return KindCheckbox
	case "radio":
		return KindRadio
	default:
		if in.Tag != "input" {
			return KindDivCheckbox
		}
		return KindText
	}
}

// scoreButton implements the CTA scoring function named in the spec:
// action verbs +2, urgency words +1, target words +1, negative words
// -3, CTA-class bonus +2, length adjustments.
func scoreButton(text, className string) int {
	t := strings.ToLower(strings.TrimSpace(text))
	score := 0

	actionVerbs := []string{"try", "learn more", "discover", "explore", "see", "view", "download", "get access", "start free", "book demo", "request demo"}
	urgencyWords := []string{"now", "today", "limited", "free"}
	targetWords := []string{"app", "store", "demo", "trial"}
	negativeWords := submitKeywords // submitting words push AWAY from CTA classification

	for _, w := range actionVerbs {
		if strings.Contains(t, w) {
			score += 2
			break
		}
	}
	for _, w := range urgencyWords {
		if strings.Contains(t, w) {
			score++
			break
		}
	}
	for _, w := range targetWords {
		if strings.Contains(t, w) {
			score++
			break
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(t, w) {
			score -= 3
			break
		}
	}
	if strings.Contains(strings.ToLower(className), "cta") {
		score += 2
	}
	if len(t) > 0 && len(t) <= 3 {
		score--
	}
	return score
}

func isLikelySubmitText(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, w := range submitKeywords {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// isDialCodeButton filters out country/flag-dropdown buttons from
// submit-button candidacy: their text starts with '+', is purely
// 1-4 digits, or is a single character.
func isDialCodeButton(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "+") {
		return true
	}
	if len(t) <= 1 {
		return true
	}
	if len(t) <= 4 {
		allDigits := true
		for _, r := range t {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return true
		}
	}
	return false
}

// resolveSubmitButton picks the form's submit control in this order:
// (a) a likely-submit button whose text matches a submit keyword (dial-
// code buttons are never likely-submit); (b) any other likely-submit
// button, which includes explicit type=submit controls; (c) the last
// non-dial-code button in the form. An input of type submit is not
// ranked ahead of keyword buttons: ButtonDescriptor carries no tag or
// type that would tell it apart.
func resolveSubmitButton(buttons []ButtonDescriptor, _ []InputDescriptor) *ButtonDescriptor {
	for i := range buttons {
		if buttons[i].IsLikelySubmit && isLikelySubmitText(buttons[i].Text) {
			b := buttons[i]
			return &b
		}
	}
	for i := range buttons {
		if buttons[i].IsLikelySubmit {
			b := buttons[i]
			return &b
		}
	}
	for i := len(buttons) - 1; i >= 0; i-- {
		if !isDialCodeButton(buttons[i].Text) {
			b := buttons[i]
			return &b
		}
	}
	return nil
}

func classifyCaptcha(r rawCaptcha) CaptchaInfo {
	kind := CaptchaKind(r.Kind)
	if kind == "" {
		kind = CaptchaNone
	}
	return CaptchaInfo{
		Present: r.Present,
		Visible: r.Present && r.Visible,
		Kind:    kind,
		Sitekey: r.Sitekey,
	}
}

var overlayErrorPhrases = []string{"error", "invalid", "required", "failed", "try again"}
var overlayRecommendationPhrases = []string{"you might also like", "recommended for you", "similar products", "based on your"}

func classifyOverlay(r rawOverlay) OverlayInfo {
	if !r.Present {
		return OverlayInfo{}
	}
	text := strings.ToLower(r.Text)
	return OverlayInfo{
		Present:           true,
		IsSuccessText:     containsAny(text, strongSuccessPhrases),
		IsRecommendation:  containsAny(text, overlayRecommendationPhrases),
		HasIframe:         r.HasIframe,
		IframeSrc:         r.IframeSrc,
		HasCaptchaContent: strings.Contains(text, "captcha") || strings.Contains(r.IframeSrc, "captcha"),
		HasErrorText:      containsAny(text, overlayErrorPhrases),
		CloseSelector:     r.CloseSelector,
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// WithDeadline bounds an observation call, matching the agent loop's
// per-snapshot budget.
func WithDeadline(ctx context.Context, dur time.Duration) (context.Context, context.CancelFunc) {
	if dur <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dur)
}
