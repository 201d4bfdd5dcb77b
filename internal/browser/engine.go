package browser

import (
	"context"
	"errors"
	"time"
)

// Session is an exclusively-owned browser page. A session belongs to a single
// request; it is acquired immediately before use and must be closed on every
// exit path.
type Session interface {
	// Navigate loads the given URL, bounded by the engine navigation timeout.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until an element matching selector is attached, bounded by timeout.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// WaitAny blocks until one of the selectors matches and reports which one matched.
	WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error)
	// Fill types value into the element matching selector.
	Fill(ctx context.Context, selector, value string) error
	// Click clicks the element matching selector.
	Click(ctx context.Context, selector string) error
	// HTML returns the current page markup.
	HTML(ctx context.Context) (string, error)
	// Close terminates the page and frees its resources. Safe to call once per session.
	Close() error
}

// Engine launches and controls a headless browser process. Implementations
// exist for rod and playwright; the active one is chosen by configuration.
type Engine interface {
	Name() string
	NewSession(ctx context.Context) (Session, error)
	Healthy(ctx context.Context) error
	Close() error
}

// Options enumerates the launch configuration shared by engines. Binary
// location and launch flags are configuration, not logic.
type Options struct {
	BinPath        string
	Headless       bool
	NoSandbox      bool
	UserAgent      string
	NavTimeout     time.Duration
	BlockResources bool
}

func (o Options) navTimeout() time.Duration {
	if o.NavTimeout <= 0 {
		return 15 * time.Second
	}
	return o.NavTimeout
}

var (
	// ErrPoolExhausted is returned when no session slot opened within the queue timeout.
	ErrPoolExhausted = errors.New("browser: session pool exhausted")
	// ErrSessionFailed is returned when the browser process failed to start or crashed.
	ErrSessionFailed = errors.New("browser: session unavailable")
	// ErrWaitTimeout is returned when a bounded wait elapsed before any selector appeared.
	ErrWaitTimeout = errors.New("browser: wait timed out")
)
