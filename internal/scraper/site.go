package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/parceltrack/backend-track/internal/browser"
)

// Selectors pins every CSS coupling point to the carrier page in one place,
// so a markup change on their side is a selector update here and nothing else.
type Selectors struct {
	TrackingInput  string
	SubmitButton   string
	ResultTable    string
	ResultRow      string
	NotFoundBanner string
}

// Config describes one carrier site.
type Config struct {
	Name        string
	URL         string
	Selectors   Selectors
	WaitTimeout time.Duration
}

// SiteScraper implements Provider against a carrier tracking page: navigate,
// fill the tracking-number input, submit, wait for the result container or
// the not-found banner, extract rows.
type SiteScraper struct {
	cfg Config
	log zerolog.Logger
}

// NewSiteScraper constructs a scraper for the configured carrier site.
func NewSiteScraper(cfg Config, log zerolog.Logger) *SiteScraper {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	return &SiteScraper{cfg: cfg, log: log.With().Str("carrier", cfg.Name).Logger()}
}

// Track performs one lookup. Failures are one of ErrNotFound,
// ErrResultTimeout or ErrPageMismatch; caller cancellation passes through
// untouched.
func (s *SiteScraper) Track(ctx context.Context, sess browser.Session, trackingNumber string) ([]Event, error) {
	if err := sess.Navigate(ctx, s.cfg.URL); err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return nil, fmt.Errorf("%w: carrier page did not load", ErrResultTimeout)
		}
		return nil, err
	}

	sel := s.cfg.Selectors
	if err := sess.WaitVisible(ctx, sel.TrackingInput, s.cfg.WaitTimeout); err != nil {
		// The page loaded but the input is gone: the markup changed, this is
		// not a slow upstream.
		if errors.Is(err, browser.ErrWaitTimeout) {
			return nil, fmt.Errorf("%w: tracking input %q absent", ErrPageMismatch, sel.TrackingInput)
		}
		return nil, err
	}
	if err := sess.Fill(ctx, sel.TrackingInput, trackingNumber); err != nil {
		return nil, structuralOr(err, fmt.Sprintf("fill %q", sel.TrackingInput))
	}
	if err := sess.Click(ctx, sel.SubmitButton); err != nil {
		return nil, structuralOr(err, fmt.Sprintf("click %q", sel.SubmitButton))
	}

	matched, err := sess.WaitAny(ctx, s.cfg.WaitTimeout, sel.ResultTable, sel.NotFoundBanner)
	if err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return nil, fmt.Errorf("%w: no result within %s", ErrResultTimeout, s.cfg.WaitTimeout)
		}
		return nil, err
	}
	if matched == sel.NotFoundBanner {
		s.log.Debug().Str("tracking_number", trackingNumber).Msg("carrier reported unknown tracking number")
		return nil, ErrNotFound
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return s.extract(html)
}

// extract parses the rendered result table into events, preserving row order.
func (s *SiteScraper) extract(html string) ([]Event, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	sel := s.cfg.Selectors
	if doc.Find(sel.ResultTable).Length() == 0 {
		return nil, fmt.Errorf("%w: result container %q absent from page", ErrPageMismatch, sel.ResultTable)
	}

	var (
		events []Event
		rowErr error
	)
	doc.Find(sel.ResultRow).EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 3 {
			rowErr = fmt.Errorf("%w: row %d has %d cells, want at least 3", ErrPageMismatch, i, cells.Length())
			return false
		}
		detail := make([]string, 0, cells.Length()-2)
		cells.Slice(2, cells.Length()).Each(func(_ int, c *goquery.Selection) {
			if text := strings.TrimSpace(c.Text()); text != "" {
				detail = append(detail, text)
			}
		})
		events = append(events, Event{
			Timestamp: strings.TrimSpace(cells.Eq(0).Text()),
			Location:  strings.TrimSpace(cells.Eq(1).Text()),
			Detail:    strings.Join(detail, " "),
		})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: result container %q has no rows", ErrPageMismatch, sel.ResultTable)
	}
	return events, nil
}

func structuralOr(err error, what string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, browser.ErrWaitTimeout) {
		return fmt.Errorf("%w: %s", ErrPageMismatch, what)
	}
	return err
}
