package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// blockedResourceTypes are skipped when resource blocking is enabled; the
// carrier markup still renders without them and pages settle much faster.
var blockedResourceTypes = map[string]struct{}{
	"image": {},
	"media": {},
	"font":  {},
}

// PlaywrightEngine drives a Chromium process through playwright-go.
type PlaywrightEngine struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightEngine starts the playwright driver and launches the browser.
func NewPlaywrightEngine(opts Options) (*PlaywrightEngine, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("run playwright: %w", err)
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.NoSandbox {
		launchOptions.Args = append(launchOptions.Args, "--no-sandbox", "--disable-dev-shm-usage")
	}
	if opts.BinPath != "" {
		launchOptions.ExecutablePath = playwright.String(opts.BinPath)
	}
	b, err := pw.Chromium.Launch(launchOptions)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return &PlaywrightEngine{opts: opts, pw: pw, browser: b}, nil
}

// Name identifies the engine in logs and metrics.
func (e *PlaywrightEngine) Name() string { return "playwright" }

// NewSession opens a fresh page with the configured user agent and optional
// resource blocking.
func (e *PlaywrightEngine) NewSession(ctx context.Context) (Session, error) {
	pageOptions := playwright.BrowserNewPageOptions{}
	if e.opts.UserAgent != "" {
		pageOptions.UserAgent = playwright.String(e.opts.UserAgent)
	}
	page, err := e.browser.NewPage(pageOptions)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if e.opts.BlockResources {
		err := page.Route("**/*", func(route playwright.Route) {
			if _, blocked := blockedResourceTypes[route.Request().ResourceType()]; blocked {
				_ = route.Abort()
				return
			}
			_ = route.Continue()
		})
		if err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("set up request interception: %w", err)
		}
	}
	return &playwrightSession{page: page, opts: e.opts}, nil
}

// Healthy probes the browser connection.
func (e *PlaywrightEngine) Healthy(ctx context.Context) error {
	if !e.browser.IsConnected() {
		return errors.New("browser disconnected")
	}
	return nil
}

// Close terminates the browser and the playwright driver.
func (e *PlaywrightEngine) Close() error {
	err := e.browser.Close()
	if stopErr := e.pw.Stop(); err == nil {
		err = stopErr
	}
	return err
}

type playwrightSession struct {
	page playwright.Page
	opts Options
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	res, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout: playwright.Float(millis(s.opts.navTimeout())),
	})
	if err != nil {
		return classifyPlaywrightWait(ctx, err, "navigate "+url)
	}
	if res != nil && !res.Ok() {
		return fmt.Errorf("load page: %d %s", res.Status(), res.StatusText())
	}
	return nil
}

func (s *playwrightSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return classifyPlaywrightWait(ctx, err, selector)
	}
	return nil
}

func (s *playwrightSession) WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	combined := strings.Join(selectors, ", ")
	handle, err := s.page.WaitForSelector(combined, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return "", classifyPlaywrightWait(ctx, err, "any of "+combined)
	}
	for _, sel := range selectors {
		res, evalErr := handle.Evaluate("(el, sel) => el.matches(sel)", sel)
		if evalErr != nil {
			return "", evalErr
		}
		if matched, ok := res.(bool); ok && matched {
			return sel, nil
		}
	}
	return "", fmt.Errorf("matched element fits none of %v", selectors)
}

func (s *playwrightSession) Fill(ctx context.Context, selector, value string) error {
	err := s.page.Fill(selector, value, playwright.PageFillOptions{
		Timeout: playwright.Float(millis(s.opts.navTimeout())),
	})
	if err != nil {
		return classifyPlaywrightWait(ctx, err, selector)
	}
	return nil
}

func (s *playwrightSession) Click(ctx context.Context, selector string) error {
	err := s.page.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(millis(s.opts.navTimeout())),
	})
	if err != nil {
		return classifyPlaywrightWait(ctx, err, selector)
	}
	return nil
}

func (s *playwrightSession) HTML(ctx context.Context) (string, error) {
	return s.page.Content()
}

func (s *playwrightSession) Close() error {
	return s.page.Close()
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

// classifyPlaywrightWait maps an elapsed bounded wait onto ErrWaitTimeout.
// playwright operations carry their own timeouts rather than honouring ctx,
// so caller cancellation is checked explicitly.
func classifyPlaywrightWait(ctx context.Context, err error, what string) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	var pwErr *playwright.Error
	if errors.As(err, &pwErr) && strings.Contains(pwErr.Name, "TimeoutError") {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, what)
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, what)
	}
	return err
}
