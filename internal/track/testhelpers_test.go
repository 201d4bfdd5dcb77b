package track_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/parceltrack/backend-track/internal/browser"
	"github.com/parceltrack/backend-track/internal/scraper"
	"github.com/parceltrack/backend-track/internal/track"
)

type stubSession struct{}

func (stubSession) Navigate(context.Context, string) error { return nil }
func (stubSession) WaitVisible(context.Context, string, time.Duration) error {
	return nil
}
func (stubSession) WaitAny(_ context.Context, _ time.Duration, selectors ...string) (string, error) {
	return selectors[0], nil
}
func (stubSession) Fill(context.Context, string, string) error { return nil }
func (stubSession) Click(context.Context, string) error        { return nil }
func (stubSession) HTML(context.Context) (string, error)       { return "", nil }
func (stubSession) Close() error                               { return nil }

type stubEngine struct {
	startErr error
}

func (stubEngine) Name() string { return "stub" }

func (e stubEngine) NewSession(context.Context) (browser.Session, error) {
	if e.startErr != nil {
		return nil, e.startErr
	}
	return stubSession{}, nil
}

func (stubEngine) Healthy(context.Context) error { return nil }
func (stubEngine) Close() error                  { return nil }

type stubProvider struct {
	fn func(ctx context.Context, tn string) ([]scraper.Event, error)
}

func (p stubProvider) Track(ctx context.Context, _ browser.Session, tn string) ([]scraper.Event, error) {
	return p.fn(ctx, tn)
}

func newService(t *testing.T, engine browser.Engine, provider scraper.Provider) (*track.Service, *browser.Pool) {
	t.Helper()
	pool := browser.NewPool(engine, 2, 50*time.Millisecond, zerolog.Nop())
	svc := &track.Service{
		Pool:     pool,
		Provider: provider,
		Log:      zerolog.Nop(),
	}
	return svc, pool
}
