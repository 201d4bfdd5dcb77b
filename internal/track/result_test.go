package track_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parceltrack/backend-track/internal/scraper"
	"github.com/parceltrack/backend-track/internal/track"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	events := []scraper.Event{
		{Timestamp: "2026-08-20 09:14", Location: "Jakarta Hub", Detail: "Package received"},
		{Timestamp: "2026-08-21 17:02", Location: "Bandung Depot", Detail: "In transit"},
	}

	res := track.Normalize("TEST12345", events)

	require.Equal(t, "Tracking Result for TEST12345", res.Title)
	require.Equal(t, []string{"Date", "Location", "Status"}, res.Header)
	require.Len(t, res.Statuses, 2)
	require.Equal(t, track.Status{DateTime: "2026-08-20 09:14", Area: "Jakarta Hub", Details: "Package received"}, res.Statuses[0])
	require.Equal(t, track.Status{DateTime: "2026-08-21 17:02", Area: "Bandung Depot", Details: "In transit"}, res.Statuses[1])
}

func TestNormalizeEmpty(t *testing.T) {
	t.Parallel()

	res := track.Normalize("EMPTY1", nil)

	require.Equal(t, "Tracking Result for EMPTY1", res.Title)
	require.Equal(t, []string{"Date", "Location", "Status"}, res.Header)
	require.NotNil(t, res.Statuses)
	require.Empty(t, res.Statuses)
}
