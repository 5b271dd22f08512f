package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pilot/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("browser")
	if err != nil {
		debugLog.Warnf("Failed to initialize browser logger, using stderr fallback: %v", err)
	}
}

// Default values for the Playwright session.
const (
	DefaultTimeout        = 30000.0 // milliseconds
	DefaultScrollAmount   = 600
	DefaultExtractLength  = 10000
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// PlaywrightOptions configures the browser launched by Start.
type PlaywrightOptions struct {
	// Install downloads the driver and browsers before the first launch.
	Install        bool
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	// Timeout is the default operation timeout in milliseconds.
	Timeout float64
}

// PlaywrightActuator drives one Chromium page. Actions are serialized.
type PlaywrightActuator struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	opts    PlaywrightOptions

	mu  sync.Mutex
	url string
}

// NewPlaywrightActuator creates an actuator. Call Start before Perform.
func NewPlaywrightActuator(opts PlaywrightOptions) *PlaywrightActuator {
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &PlaywrightActuator{opts: opts, url: "about:blank"}
}

// Start launches Playwright, a browser, a context and a page.
func (a *PlaywrightActuator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.page != nil {
		return nil
	}

	// Driver output would otherwise interleave with CLI event output.
	runOpts := &playwright.RunOptions{Verbose: false, Stdout: io.Discard, Stderr: io.Discard}
	if a.opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: &a.opts.Headless})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: a.opts.ViewportWidth, Height: a.opts.ViewportHeight},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return fmt.Errorf("failed to create context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(a.opts.Timeout)

	a.pw, a.browser, a.bctx, a.page = pw, browser, bctx, page
	debugLog.Infof("Browser started (headless=%v, viewport %dx%d)", a.opts.Headless, a.opts.ViewportWidth, a.opts.ViewportHeight)
	return nil
}

// Close releases the page, context, browser and driver.
func (a *PlaywrightActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.page == nil {
		return nil
	}

	var errs []error
	for _, closeFn := range []func() error{
		func() error { return a.page.Close() },
		func() error { return a.bctx.Close() },
		func() error { return a.browser.Close() },
		a.pw.Stop,
	} {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	a.pw, a.browser, a.bctx, a.page = nil, nil, nil, nil
	if len(errs) > 0 {
		return fmt.Errorf("errors closing browser: %v", errs)
	}
	return nil
}

// CurrentURL returns the URL observed after the last action.
func (a *PlaywrightActuator) CurrentURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.url
}

// PageHTML returns the current page markup.
func (a *PlaywrightActuator) PageHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.page == nil {
		return "", fmt.Errorf("browser not started")
	}
	return a.page.Content()
}

// Perform executes one action. Playwright calls are bounded by the page
// timeout rather than ctx, so ctx is only checked before starting.
func (a *PlaywrightActuator) Perform(ctx context.Context, act Action) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	if err := act.Validate(); err != nil {
		return ActionResult{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.page == nil {
		return ActionResult{}, fmt.Errorf("browser not started")
	}

	out, err := a.perform(act)
	a.url = a.page.URL()
	if err != nil {
		return ActionResult{URL: a.url}, fmt.Errorf("%s failed: %w", act.Type, err)
	}
	debugLog.Debugf("Performed %s, now at %s", act, a.url)
	return ActionResult{URL: a.url, Output: out}, nil
}

func (a *PlaywrightActuator) perform(act Action) (string, error) {
	switch act.Type {
	case ActionNavigate:
		waitUntil := playwright.WaitUntilStateDomcontentloaded
		_, err := a.page.Goto(act.URL, playwright.PageGotoOptions{WaitUntil: waitUntil})
		return "", err
	case ActionClick:
		return "", a.page.Click(act.Selector)
	case ActionFill:
		return "", a.page.Fill(act.Selector, act.Value)
	case ActionScroll:
		amount := act.Amount
		if amount == 0 {
			amount = DefaultScrollAmount
		}
		return "", a.page.Mouse().Wheel(0, float64(amount))
	case ActionExtract:
		selector := act.Selector
		if selector == "" {
			selector = "body"
		}
		text, err := a.page.InnerText(selector)
		if err != nil {
			return "", err
		}
		return truncate(text, DefaultExtractLength), nil
	case ActionWait:
		if act.Selector == "" {
			a.page.WaitForTimeout(float64(act.Amount))
			return "", nil
		}
		_, err := a.page.WaitForSelector(act.Selector)
		return "", err
	case ActionGoBack:
		_, err := a.page.GoBack()
		return "", err
	}
	return "", fmt.Errorf("action %q is not performed by the browser", act.Type)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return fmt.Sprintf("%s\n\n[Content truncated: %d of %d bytes shown]", s[:n], n, len(s))
}
