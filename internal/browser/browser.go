package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	defaultNavTimeout   = 30 * time.Second
	defaultActionTime   = 10 * time.Second
	headlessEnv         = "AGENT_HEADLESS"
	defaultScrollAmount = 600
)

// Controller exposes minimal browser actions to the agent.
type Controller interface {
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	ClickText(ctx context.Context, text string, exact bool) error
	Click(ctx context.Context, selector string) error
	ClickByTextFuzzy(ctx context.Context, text string) error
	Fill(ctx context.Context, selector, text string) error
	Read(ctx context.Context, selector string) (string, error)
	Scroll(ctx context.Context, direction string, distance int) error
	ScrollToElement(ctx context.Context, selector string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	WaitForStableDOM(ctx context.Context, timeout time.Duration) error
	PressKey(ctx context.Context, key string) error
	Page() playwright.Page
}

// Launcher owns playwright lifecycle.
type Launcher struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	headless bool
}

func NewLauncher(ctx context.Context) (*Launcher, error) {
	if err := ensureDeps(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	headless := parseBoolEnv(headlessEnv, false)
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: browser, headless: headless}, nil
}

func (l *Launcher) NewController(ctx context.Context, storagePath string) (Controller, error) {
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if strings.TrimSpace(storagePath) != "" {
		opts.StorageStatePath = playwright.String(storagePath)
	}
	context, err := l.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := context.NewPage()
	if err != nil {
		_ = context.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))
	return &controller{context: context, page: page}, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type controller struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func (c *controller) Page() playwright.Page {
	return c.page
}

func (c *controller) Close(ctx context.Context) error {
	_ = ctx
	if c.page != nil {
		_ = c.page.Close()
	}
	if c.context != nil {
		return c.context.Close()
	}
	return nil
}

func (c *controller) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
	})
	return wrap(err)
}

func (c *controller) ClickText(ctx context.Context, text string, exact bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := c.page.GetByText(text, playwright.PageGetByTextOptions{
		Exact: playwright.Bool(exact),
	})
	first := loc.First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}); err != nil {
		return wrap(err)
	}
	return wrap(first.Click())
}

func (c *controller) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := c.page.Locator(selector)
	// Use First() to avoid strict mode violation when multiple elements match
	first := loc.First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}); err != nil {
		return wrap(err)
	}
	// Scroll element into view before clicking
	if err := first.ScrollIntoViewIfNeeded(); err != nil {
		// If scroll fails, try click anyway
	}
	// Click the first matching element
	return wrap(first.Click())
}

// ClickByTextFuzzy finds element by partial text match and clicks it
func (c *controller) ClickByTextFuzzy(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Match on partial text only
	loc := c.page.GetByText(text, playwright.PageGetByTextOptions{
		Exact: playwright.Bool(false), // Fuzzy match
	})
	first := loc.First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000), // Shorter timeout for fuzzy
	}); err != nil {
		return wrap(err)
	}
	if err := first.ScrollIntoViewIfNeeded(); err != nil {
		// Continue anyway
	}
	return wrap(first.Click())
}

// ScrollToElement scrolls element into view before interaction
func (c *controller) ScrollToElement(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := c.page.Locator(selector)
	first := loc.First()
	return wrap(first.ScrollIntoViewIfNeeded())
}

func (c *controller) Fill(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := c.page.Locator(selector)
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}); err != nil {
		return wrap(err)
	}
	if err := loc.Fill(text); err != nil {
		return wrap(err)
	}
	return nil
}

func (c *controller) Read(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(selector) == "" {
		val, err := c.page.InnerText("body")
		if err != nil {
			return "", wrap(err)
		}
		return val, nil
	}
	loc := c.page.Locator(selector)
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}); err != nil {
		return "", wrap(err)
	}
	val, err := loc.InnerText()
	return val, wrap(err)
}

func (c *controller) Scroll(ctx context.Context, direction string, distance int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if distance == 0 {
		distance = defaultScrollAmount
	}
	move := distance
	switch strings.ToLower(direction) {
	case "up", "north":
		move = -distance
	case "top":
		_, err := c.page.Evaluate("window.scrollTo(0,0);")
		return wrap(err)
	case "bottom":
		_, err := c.page.Evaluate("window.scrollTo(0, document.body.scrollHeight);")
		return wrap(err)
	case "page_down":
		move = distance * 2
	case "page_up":
		move = -distance * 2
	}
	script := fmt.Sprintf("window.scrollBy(0,%d);", move)
	_, err := c.page.Evaluate(script)
	return wrap(err)
}

func (c *controller) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultActionTime
	}
	loc := c.page.Locator(selector)
	return wrap(loc.WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(timeout.Seconds() * 1000),
		State:   playwright.WaitForSelectorStateVisible,
	}))
}

// PressKey sends a single key to the currently focused element, used
// for the ESC-to-dismiss overlay fallback.
func (c *controller) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(c.page.Keyboard().Press(key))
}

// WaitForStableDOM polls document.body.innerText length until two
// consecutive reads agree, used after a click whose navigation
// discipline calls for settling before the next observation.
func (c *controller) WaitForStableDOM(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultActionTime
	}
	deadline := time.Now().Add(timeout)
	var lastLen int
	stableReads := 0
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := c.page.InnerText("body")
		if err != nil {
			return wrap(err)
		}
		if len(text) == lastLen {
			stableReads++
			if stableReads >= 2 {
				return nil
			}
		} else {
			stableReads = 0
			lastLen = len(text)
		}
		time.Sleep(300 * time.Millisecond)
	}
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}

func parseBoolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func ensureDeps() error {
	// Browsers usually preinstalled in this workspace. Hook for future checks.
	return nil
}
