package track

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/parceltrack/backend-track/internal/browser"
	"github.com/parceltrack/backend-track/internal/common"
	"github.com/parceltrack/backend-track/internal/resilience"
	"github.com/parceltrack/backend-track/internal/scraper"
)

// Stable response messages. Raw internal error text never reaches the caller.
const (
	msgInvalidRequest = "Invalid request. 'tracking_number' field is required."
	msgNotFound       = "Failed to retrieve tracking data or ID not found."
	msgTimeout        = "Tracking lookup timed out."
	msgUpstream       = "Failed to retrieve tracking data from carrier."
	msgOverloaded     = "Service is busy. Please retry shortly."
	msgCarrierDown    = "Carrier is temporarily unavailable. Please retry shortly."
	msgInternal       = "Internal server error."
)

type trackRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=64"`
}

// Handler exposes the tracking lookup endpoint.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Log      zerolog.Logger
}

// Track handles POST /track.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	req.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
	if req.TrackingNumber == "" {
		common.JSONError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, msgInvalidRequest)
			return
		}
	}

	result, err := h.Svc.Track(r.Context(), req.TrackingNumber)
	if err != nil {
		h.respondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away; there is nobody to respond to.
	case errors.Is(err, scraper.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, scraper.ErrResultTimeout):
		common.JSONError(w, http.StatusGatewayTimeout, msgTimeout)
	case errors.Is(err, scraper.ErrPageMismatch), errors.Is(err, browser.ErrSessionFailed):
		common.JSONError(w, http.StatusBadGateway, msgUpstream)
	case errors.Is(err, browser.ErrPoolExhausted):
		common.JSONError(w, http.StatusServiceUnavailable, msgOverloaded)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, msgCarrierDown)
	default:
		h.Log.Error().Err(err).Msg("unclassified tracking failure")
		common.JSONError(w, http.StatusInternalServerError, msgInternal)
	}
}
