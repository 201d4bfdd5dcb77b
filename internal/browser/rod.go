package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodEngine drives a single Chromium process through go-rod. One page is
// opened per session; the process itself is shared and launched once.
type RodEngine struct {
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodEngine launches the browser process and connects to it.
func NewRodEngine(opts Options) (*RodEngine, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)
	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return &RodEngine{opts: opts, launcher: l, browser: b}, nil
}

// Name identifies the engine in logs and metrics.
func (e *RodEngine) Name() string { return "rod" }

// NewSession opens a fresh page with the configured user agent.
func (e *RodEngine) NewSession(ctx context.Context) (Session, error) {
	page, err := e.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if e.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: e.opts.UserAgent}); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	return &rodSession{page: page, opts: e.opts}, nil
}

// Healthy probes the browser process.
func (e *RodEngine) Healthy(ctx context.Context) error {
	_, err := e.browser.Context(ctx).Version()
	return err
}

// Close terminates the browser process.
func (e *RodEngine) Close() error {
	err := e.browser.Close()
	e.launcher.Cleanup()
	return err
}

type rodSession struct {
	page *rod.Page
	opts Options
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.opts.navTimeout())
	if err := page.Navigate(url); err != nil {
		return classifyRodWait(err, "navigate "+url)
	}
	if err := page.WaitLoad(); err != nil {
		return classifyRodWait(err, "load "+url)
	}
	return nil
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := s.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return classifyRodWait(err, selector)
	}
	return nil
}

func (s *rodSession) WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	race := s.page.Context(ctx).Timeout(timeout).Race()
	matched := ""
	for _, sel := range selectors {
		race = race.Element(sel).Handle(func(*rod.Element) error {
			matched = sel
			return nil
		})
	}
	if _, err := race.Do(); err != nil {
		return "", classifyRodWait(err, fmt.Sprintf("any of %v", selectors))
	}
	return matched, nil
}

func (s *rodSession) Fill(ctx context.Context, selector, value string) error {
	el, err := s.page.Context(ctx).Timeout(s.opts.navTimeout()).Element(selector)
	if err != nil {
		return classifyRodWait(err, selector)
	}
	return el.Input(value)
}

func (s *rodSession) Click(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Timeout(s.opts.navTimeout()).Element(selector)
	if err != nil {
		return classifyRodWait(err, selector)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Close() error {
	return s.page.Close()
}

// classifyRodWait keeps caller cancellation distinguishable from an elapsed
// wait bound.
func classifyRodWait(err error, what string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, what)
	}
	return err
}
