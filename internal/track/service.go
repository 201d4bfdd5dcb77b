package track

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/parceltrack/backend-track/internal/browser"
	"github.com/parceltrack/backend-track/internal/obs"
	"github.com/parceltrack/backend-track/internal/resilience"
	"github.com/parceltrack/backend-track/internal/scraper"
)

// Service orchestrates one lookup: acquire a session from the bounded pool,
// run the carrier scrape, normalize. The session is released on every exit
// path, including caller cancellation.
type Service struct {
	Pool     *browser.Pool
	Provider scraper.Provider
	// Breaker is optional; when set, a failing carrier gets a cool-off
	// before another browser session is spent on it.
	Breaker *resilience.Breaker
	Log     zerolog.Logger
}

// Track runs a lookup for the given tracking number.
func (s *Service) Track(ctx context.Context, trackingNumber string) (Result, error) {
	start := time.Now()

	if s.Breaker != nil && !s.Breaker.Allow(ctx) {
		err := resilience.ErrOpenCircuit
		s.observe(start, err)
		s.logFailure(trackingNumber, err)
		return Result{}, err
	}

	lease, err := s.Pool.Acquire(ctx)
	if err != nil {
		s.observe(start, err)
		s.logFailure(trackingNumber, err)
		return Result{}, err
	}
	defer lease.Release()

	events, err := s.Provider.Track(ctx, lease.Session(), trackingNumber)
	s.reportCarrier(ctx, err)
	if err != nil {
		s.observe(start, err)
		s.logFailure(trackingNumber, err)
		return Result{}, err
	}

	s.observe(start, nil)
	s.Log.Info().
		Str("tracking_number", trackingNumber).
		Int("events", len(events)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("tracking lookup succeeded")
	return Normalize(trackingNumber, events), nil
}

// reportCarrier feeds the breaker with the carrier's health. A clean
// not-found is a healthy carrier answer; cancellation says nothing about it.
func (s *Service) reportCarrier(ctx context.Context, err error) {
	if s.Breaker == nil || errors.Is(err, context.Canceled) {
		return
	}
	success := err == nil || errors.Is(err, scraper.ErrNotFound)
	s.Breaker.Report(ctx, success)
}

func (s *Service) observe(start time.Time, err error) {
	result := outcomeLabel(err)
	if obs.ScrapeTotal != nil {
		obs.ScrapeTotal.WithLabelValues(s.Pool.Engine().Name(), result).Inc()
	}
	if obs.ScrapeDuration != nil {
		obs.ScrapeDuration.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
}

// logFailure keeps the full error server-side. Structure drift and browser
// failures need operator attention and log at error level; the rest is
// expected traffic noise.
func (s *Service) logFailure(trackingNumber string, err error) {
	evt := s.Log.Warn()
	switch {
	case errors.Is(err, scraper.ErrPageMismatch), errors.Is(err, browser.ErrSessionFailed):
		evt = s.Log.Error()
	case errors.Is(err, scraper.ErrNotFound), errors.Is(err, context.Canceled):
		evt = s.Log.Debug()
	}
	evt.Err(err).Str("tracking_number", trackingNumber).Msg("tracking lookup failed")
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, scraper.ErrNotFound):
		return "not_found"
	case errors.Is(err, scraper.ErrResultTimeout):
		return "timeout"
	case errors.Is(err, scraper.ErrPageMismatch):
		return "mismatch"
	case errors.Is(err, browser.ErrPoolExhausted):
		return "overloaded"
	case errors.Is(err, browser.ErrSessionFailed):
		return "session_error"
	case errors.Is(err, resilience.ErrOpenCircuit):
		return "circuit_open"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
