package track

import "github.com/parceltrack/backend-track/internal/scraper"

// Status is one normalized tracking event in the response payload.
type Status struct {
	DateTime string `json:"date_time"`
	Area     string `json:"area"`
	Details  string `json:"details"`
}

// Result is the response payload for a successful lookup. It is built once
// per request and discarded after the response is sent.
type Result struct {
	Title    string   `json:"title"`
	Header   []string `json:"header"`
	Statuses []Status `json:"statuses"`
}

// Normalize maps raw scraper events into the fixed response schema. The
// header columns are always Date, Location, Status regardless of how the
// carrier orders its fields; event order is preserved as scraped. Pure
// transform, no I/O.
func Normalize(trackingNumber string, events []scraper.Event) Result {
	statuses := make([]Status, 0, len(events))
	for _, ev := range events {
		statuses = append(statuses, Status{
			DateTime: ev.Timestamp,
			Area:     ev.Location,
			Details:  ev.Detail,
		})
	}
	return Result{
		Title:    "Tracking Result for " + trackingNumber,
		Header:   []string{"Date", "Location", "Status"},
		Statuses: statuses,
	}
}
