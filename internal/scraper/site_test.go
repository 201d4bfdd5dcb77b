package scraper_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/parceltrack/backend-track/internal/browser"
	"github.com/parceltrack/backend-track/internal/scraper"
)

var testSelectors = scraper.Selectors{
	TrackingInput:  "input#trackingNumber",
	SubmitButton:   "button.track-submit",
	ResultTable:    "table.track-result",
	ResultRow:      "table.track-result tbody tr",
	NotFoundBanner: "div.track-empty",
}

const resultHTML = `<html><body>
<table class="track-result">
<thead><tr><th>Date</th><th>Location</th><th>Status</th></tr></thead>
<tbody>
<tr><td>2024-05-01 09:12</td><td>Jakarta Hub</td><td>Departed facility</td></tr>
<tr><td>2024-05-02 14:03</td><td>Surabaya</td><td>Out for delivery</td></tr>
</tbody>
</table>
</body></html>`

const mismatchHTML = `<html><body>
<table class="track-result">
<tbody><tr><td>2024-05-01</td></tr></tbody>
</table>
</body></html>`

// scriptedSession drives the scraper without a real browser.
type scriptedSession struct {
	html       string
	waitAnyHit string
	waitAnyErr error
	waitVisErr error
	navErr     error
	fills      map[string]string
	clicks     []string
}

func newScriptedSession() *scriptedSession {
	return &scriptedSession{fills: map[string]string{}}
}

func (s *scriptedSession) Navigate(context.Context, string) error { return s.navErr }

func (s *scriptedSession) WaitVisible(context.Context, string, time.Duration) error {
	return s.waitVisErr
}

func (s *scriptedSession) WaitAny(_ context.Context, _ time.Duration, selectors ...string) (string, error) {
	if s.waitAnyErr != nil {
		return "", s.waitAnyErr
	}
	if s.waitAnyHit != "" {
		return s.waitAnyHit, nil
	}
	return selectors[0], nil
}

func (s *scriptedSession) Fill(_ context.Context, selector, value string) error {
	s.fills[selector] = value
	return nil
}

func (s *scriptedSession) Click(_ context.Context, selector string) error {
	s.clicks = append(s.clicks, selector)
	return nil
}

func (s *scriptedSession) HTML(context.Context) (string, error) { return s.html, nil }
func (s *scriptedSession) Close() error                         { return nil }

func newTestScraper() *scraper.SiteScraper {
	return scraper.NewSiteScraper(scraper.Config{
		Name:        "testcarrier",
		URL:         "https://tracking.example.com/",
		Selectors:   testSelectors,
		WaitTimeout: 100 * time.Millisecond,
	}, zerolog.Nop())
}

func TestTrackExtractsRowsInOrder(t *testing.T) {
	t.Parallel()

	sess := newScriptedSession()
	sess.html = resultHTML

	events, err := newTestScraper().Track(context.Background(), sess, "TEST12345")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "2024-05-01 09:12", events[0].Timestamp)
	require.Equal(t, "Jakarta Hub", events[0].Location)
	require.Equal(t, "Departed facility", events[0].Detail)
	require.Equal(t, "Out for delivery", events[1].Detail)

	require.Equal(t, "TEST12345", sess.fills[testSelectors.TrackingInput])
	require.Equal(t, []string{testSelectors.SubmitButton}, sess.clicks)
}

func TestTrackReportsNotFound(t *testing.T) {
	t.Parallel()

	sess := newScriptedSession()
	sess.waitAnyHit = testSelectors.NotFoundBanner

	_, err := newTestScraper().Track(context.Background(), sess, "NOPE")
	require.ErrorIs(t, err, scraper.ErrNotFound)
}

func TestTrackReportsResultTimeout(t *testing.T) {
	t.Parallel()

	sess := newScriptedSession()
	sess.waitAnyErr = browser.ErrWaitTimeout

	_, err := newTestScraper().Track(context.Background(), sess, "SLOW1")
	require.ErrorIs(t, err, scraper.ErrResultTimeout)
	require.NotErrorIs(t, err, scraper.ErrNotFound)
}

func TestTrackReportsMismatchWhenInputAbsent(t *testing.T) {
	t.Parallel()

	sess := newScriptedSession()
	sess.waitVisErr = browser.ErrWaitTimeout

	_, err := newTestScraper().Track(context.Background(), sess, "TEST12345")
	require.ErrorIs(t, err, scraper.ErrPageMismatch)
}

func TestTrackReportsMismatchOnShortRows(t *testing.T) {
	t.Parallel()

	sess := newScriptedSession()
	sess.html = mismatchHTML

	_, err := newTestScraper().Track(context.Background(), sess, "TEST12345")
	require.ErrorIs(t, err, scraper.ErrPageMismatch)
}

func TestTrackReportsMismatchOnEmptyTable(t *testing.T) {
	t.Parallel()

	sess := newScriptedSession()
	sess.html = `<html><body><table class="track-result"><tbody></tbody></table></body></html>`

	_, err := newTestScraper().Track(context.Background(), sess, "TEST12345")
	require.ErrorIs(t, err, scraper.ErrPageMismatch)
}

func TestTrackPassesThroughCancellation(t *testing.T) {
	t.Parallel()

	sess := newScriptedSession()
	sess.navErr = context.Canceled

	_, err := newTestScraper().Track(context.Background(), sess, "TEST12345")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, scraper.ErrResultTimeout)
}
