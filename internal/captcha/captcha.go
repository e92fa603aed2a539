package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-fast/internal/agent"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/browser"
	"github.com/polzovatel/ai-agent-for-browser-fast/internal/snapshot"
)

// Handler drives the CAPTCHA Handler (C8): it is only entered once the
// observer has confirmed a visible challenge.
type Handler struct {
	ctrl   browser.Controller
	solver *SolverClient
	logger zerolog.Logger
}

func New(ctrl browser.Controller, solver *SolverClient) *Handler {
	return &Handler{ctrl: ctrl, solver: solver, logger: zerolog.Nop()}
}

func NewWithLogger(ctrl browser.Controller, solver *SolverClient, logger zerolog.Logger) *Handler {
	return &Handler{ctrl: ctrl, solver: solver, logger: logger}
}

// Handle attempts to clear a confirmed-visible CAPTCHA. It always
// marks CaptchaAttempted; CaptchaSolved is only set on verified
// success. A second visible CAPTCHA on the same URL is the caller's
// responsibility to avoid re-entering (checked against
// st.CaptchaAttempted before calling Handle).
func (h *Handler) Handle(ctx context.Context, snap snapshot.PageSnapshot, st *agent.State) error {
	if !snap.Captcha.Present || !snap.Captcha.Visible {
		return fmt.Errorf("no visible captcha to handle")
	}
	st.CaptchaAttempted = true

	if h.solver.Configured() && st.CaptchaSolverAttempts < maxAttemptsPerURL {
		st.CaptchaSolverAttempts++
		if err := h.solveExternally(ctx, snap); err == nil {
			st.CaptchaSolved = true
			return nil
		} else {
			h.logger.Debug().Err(err).Msg("external captcha solve failed, falling back")
		}
	}

	if snap.Captcha.Kind == snapshot.CaptchaRecaptchaV2 {
		if err := h.clickAnchorCheckbox(ctx); err == nil {
			st.CaptchaSolved = true
			return nil
		}
	}

	return fmt.Errorf("captcha not resolved")
}

func (h *Handler) solveExternally(ctx context.Context, snap snapshot.PageSnapshot) error {
	kind := ChallengeRecaptchaV2
	if snap.Captcha.Kind == snapshot.CaptchaHCaptcha {
		kind = ChallengeHCaptcha
	}
	if snap.Captcha.Sitekey == "" {
		return fmt.Errorf("no sitekey observed")
	}

	taskID, err := h.solver.Submit(ctx, kind, snap.Captcha.Sitekey, snap.URL)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	token, err := h.solver.Poll(ctx, taskID)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	return InjectToken(h.ctrl.Page(), token)
}

// clickAnchorCheckbox is the no-solver / solver-failed fallback for
// reCAPTCHA v2: click the visible checkbox inside the anchor iframe
// and verify the widget reports aria-checked=true within 3s. Image
// challenges that appear after the click are not handled.
func (h *Handler) clickAnchorCheckbox(ctx context.Context) error {
	page := h.ctrl.Page()
	frame := findAnchorFrame(page)
	if frame == nil {
		return fmt.Errorf("recaptcha anchor iframe not found")
	}
	loc := frame.Locator("#recaptcha-anchor")
	if err := loc.Click(); err != nil {
		return fmt.Errorf("click anchor checkbox: %w", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		checked, err := loc.GetAttribute("aria-checked")
		if err == nil && checked == "true" {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("checkbox did not verify checked within 3s")
}

func findAnchorFrame(page playwright.Page) playwright.Frame {
	for _, f := range page.Frames() {
		if strings.Contains(f.URL(), "recaptcha") && strings.Contains(f.URL(), "anchor") {
			return f
		}
	}
	return nil
}
