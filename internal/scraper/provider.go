package scraper

import (
	"context"
	"errors"

	"github.com/parceltrack/backend-track/internal/browser"
)

// Event is one raw tracking row as the carrier page reports it. Order is the
// carrier-reported order, unmodified.
type Event struct {
	Timestamp string
	Location  string
	Detail    string
}

// Provider models a carrier lookup capable of fetching tracking events
// through a browser session.
type Provider interface {
	Track(ctx context.Context, sess browser.Session, trackingNumber string) ([]Event, error)
}

var (
	// ErrNotFound means the carrier page reported an unknown tracking number.
	ErrNotFound = errors.New("scraper: tracking number not found")
	// ErrResultTimeout means the result container never appeared within the wait bound.
	ErrResultTimeout = errors.New("scraper: result container timed out")
	// ErrPageMismatch means expected elements are absent; the carrier page changed.
	ErrPageMismatch = errors.New("scraper: carrier page structure changed")
)
