package track_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/parceltrack/backend-track/internal/browser"
	"github.com/parceltrack/backend-track/internal/resilience"
	"github.com/parceltrack/backend-track/internal/scraper"
	"github.com/parceltrack/backend-track/internal/track"
)

func newHandler(t *testing.T, provider scraper.Provider) *track.Handler {
	t.Helper()
	svc, _ := newService(t, stubEngine{}, provider)
	return &track.Handler{
		Svc:      svc,
		Validate: validator.New(),
		Log:      zerolog.Nop(),
	}
}

func doTrack(h *track.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Track(rec, req)
	return rec
}

func TestTrackSuccess(t *testing.T) {
	t.Parallel()

	h := newHandler(t, stubProvider{fn: func(_ context.Context, tn string) ([]scraper.Event, error) {
		require.Equal(t, "TEST12345", tn)
		return []scraper.Event{
			{Timestamp: "2026-08-20 09:14", Location: "Jakarta Hub", Detail: "Package received at origin facility"},
			{Timestamp: "2026-08-21 17:02", Location: "Bandung Depot", Detail: "In transit to destination"},
		}, nil
	}})

	rec := doTrack(h, `{"tracking_number":"TEST12345"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{
		"title": "Tracking Result for TEST12345",
		"header": ["Date", "Location", "Status"],
		"statuses": [
			{"date_time": "2026-08-20 09:14", "area": "Jakarta Hub", "details": "Package received at origin facility"},
			{"date_time": "2026-08-21 17:02", "area": "Bandung Depot", "details": "In transit to destination"}
		]
	}`, rec.Body.String())
}

func TestTrackValidation(t *testing.T) {
	t.Parallel()

	h := newHandler(t, stubProvider{fn: func(context.Context, string) ([]scraper.Event, error) {
		t.Fatal("provider must not be reached on invalid input")
		return nil, nil
	}})

	cases := []struct {
		name string
		body string
	}{
		{"missing field", `{}`},
		{"empty value", `{"tracking_number":""}`},
		{"whitespace value", `{"tracking_number":"   "}`},
		{"malformed json", `{"tracking_number":`},
		{"wrong type", `{"tracking_number":12345}`},
		{"empty body", ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doTrack(h, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{"error":"Invalid request. 'tracking_number' field is required."}`, rec.Body.String())
		})
	}
}

func TestTrackErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			"not found", scraper.ErrNotFound, http.StatusNotFound,
			`{"error":"Failed to retrieve tracking data or ID not found."}`,
		},
		{
			"result timeout", scraper.ErrResultTimeout, http.StatusGatewayTimeout,
			`{"error":"Tracking lookup timed out."}`,
		},
		{
			"page mismatch", scraper.ErrPageMismatch, http.StatusBadGateway,
			`{"error":"Failed to retrieve tracking data from carrier."}`,
		},
		{
			"carrier circuit open", resilience.ErrOpenCircuit, http.StatusServiceUnavailable,
			`{"error":"Carrier is temporarily unavailable. Please retry shortly."}`,
		},
		{
			"unclassified", context.DeadlineExceeded, http.StatusInternalServerError,
			`{"error":"Internal server error."}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(t, stubProvider{fn: func(context.Context, string) ([]scraper.Event, error) {
				return nil, tc.err
			}})
			rec := doTrack(h, `{"tracking_number":"TEST12345"}`)
			require.Equal(t, tc.wantStatus, rec.Code)
			require.JSONEq(t, tc.wantBody, rec.Body.String())
		})
	}
}

func TestTrackSessionFailure(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, stubEngine{startErr: browser.ErrSessionFailed},
		stubProvider{fn: func(context.Context, string) ([]scraper.Event, error) {
			t.Fatal("provider must not be reached when the session fails to start")
			return nil, nil
		}})
	h := &track.Handler{Svc: svc, Validate: validator.New(), Log: zerolog.Nop()}

	rec := doTrack(h, `{"tracking_number":"TEST12345"}`)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.JSONEq(t, `{"error":"Failed to retrieve tracking data from carrier."}`, rec.Body.String())
}

func TestTrackOverloaded(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	h := newHandler(t, stubProvider{fn: func(ctx context.Context, _ string) ([]scraper.Event, error) {
		<-release
		return nil, nil
	}})

	// Saturate both pool slots, then the third request must be rejected
	// within the queue timeout.
	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			doTrack(h, `{"tracking_number":"HELD"}`)
			done <- struct{}{}
		}()
	}
	require.Eventually(t, func() bool { return h.Svc.Pool.InUse() == 2 }, time.Second, 5*time.Millisecond)

	rec := doTrack(h, `{"tracking_number":"TEST12345"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"error":"Service is busy. Please retry shortly."}`, rec.Body.String())

	close(release)
	<-done
	<-done
}

func TestTrackClientCancellation(t *testing.T) {
	t.Parallel()

	h := newHandler(t, stubProvider{fn: func(ctx context.Context, _ string) ([]scraper.Event, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(`{"tracking_number":"TEST12345"}`))
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	h.Track(rec, req)

	// Nobody is listening; no response body is produced.
	require.Zero(t, rec.Body.Len())
	require.Zero(t, h.Svc.Pool.InUse())
}
