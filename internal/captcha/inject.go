package captcha

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// InjectToken sets a solved token into the page and triggers whatever
// callback the site wired up for it. Strategies are tried in order
// until one reports success; sites vary in which mechanism they poll.
func InjectToken(page playwright.Page, token string) error {
	strategies := []func(playwright.Page, string) (bool, error){
		injectViaResponseField,
		injectViaDataCallback,
		injectViaWindowCallback,
	}
	var lastErr error
	for _, strategy := range strategies {
		ok, err := strategy(page, token)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return nil
		}
	}
	if lastErr != nil {
		return fmt.Errorf("all token injection strategies failed: %w", lastErr)
	}
	return fmt.Errorf("no token injection strategy matched this page")
}

const injectViaResponseFieldScript = `(token) => {
	const selectors = [
		'textarea[name="g-recaptcha-response"]',
		'input[name="g-recaptcha-response"]',
		'textarea[name="h-captcha-response"]',
		'input[name="h-captcha-response"]',
	];
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (el) {
			el.style.display = 'block';
			el.value = token;
			el.dispatchEvent(new Event('input', {bubbles: true}));
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}
	}
	return false;
}`

func injectViaResponseField(page playwright.Page, token string) (bool, error) {
	v, err := page.Evaluate(injectViaResponseFieldScript, token)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

const injectViaDataCallbackScript = `(token) => {
	const widgets = document.querySelectorAll('[data-callback]');
	for (const el of widgets) {
		const name = el.getAttribute('data-callback');
		if (name && typeof window[name] === 'function') {
			try { window[name](token); return true; } catch (e) {}
		}
	}
	return false;
}`

func injectViaDataCallback(page playwright.Page, token string) (bool, error) {
	v, err := page.Evaluate(injectViaDataCallbackScript, token)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

const injectViaWindowCallbackScript = `(token) => {
	const names = ['grecaptchaCallback', 'hcaptchaCallback', 'onCaptchaSuccess', 'captchaCallback'];
	for (const name of names) {
		if (typeof window[name] === 'function') {
			try { window[name](token); return true; } catch (e) {}
		}
	}
	if (window.grecaptcha && typeof window.grecaptcha.getResponse === 'function') {
		return true;
	}
	return false;
}`

func injectViaWindowCallback(page playwright.Page, token string) (bool, error) {
	v, err := page.Evaluate(injectViaWindowCallbackScript, token)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}
