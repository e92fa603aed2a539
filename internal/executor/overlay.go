package executor

import (
	"context"
	"time"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

var closeButtonSelectors = []string{
	"[aria-label='Close']",
	"[aria-label='close']",
	"button.close",
	".modal-close",
	"[class*='close-button']",
	"[class*='dismiss']",
	"svg[class*='close']",
}

// OverlayVerdictKind is what the overlay routine decided.
type OverlayVerdictKind string

const (
	OverlayNone      OverlayVerdictKind = "none"
	OverlayCaptcha   OverlayVerdictKind = "needs_action_captcha"
	OverlayHasError  OverlayVerdictKind = "has_error"
	OverlayIsSuccess OverlayVerdictKind = "is_success"
	OverlayDismissed OverlayVerdictKind = "dismissed"
)

// classifyOverlayBlock implements §4.5.2's precedence: captcha over
// error over success, since the observer already classified the
// overlay's text and iframe content when it built the snapshot.
func classifyOverlayBlock(snap snapshot.PageSnapshot, formSubmitted bool) OverlayVerdictKind {
	if !snap.Overlay.Present {
		return OverlayNone
	}
	if snap.Overlay.HasCaptchaContent || snap.Captcha.Visible {
		return OverlayCaptcha
	}
	if snap.Overlay.HasErrorText {
		return OverlayHasError
	}
	if (snap.Overlay.IsSuccessText || snap.Overlay.IsRecommendation) && formSubmitted {
		return OverlayIsSuccess
	}
	return OverlayNone
}

// dismissOverlay tries each close-button candidate, falling back to
// ESC, and reports whether anything looked like it worked.
func (e *Executor) dismissOverlay(ctx context.Context, snap snapshot.PageSnapshot) bool {
	candidates := closeButtonSelectors
	if snap.Overlay.CloseSelector != "" {
		candidates = append([]string{snap.Overlay.CloseSelector}, candidates...)
	}
	for _, sel := range candidates {
		if err := e.ctrl.Click(ctx, sel); err == nil {
			time.Sleep(300 * time.Millisecond)
			return true
		}
	}
	if err := e.ctrl.PressKey(ctx, "Escape"); err == nil {
		time.Sleep(300 * time.Millisecond)
		return true
	}
	return false
}
