package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
// SlotTaken is an expected, retryable outcome under concurrent load, so it
// gets a machine-readable code clients can branch on.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, model.ErrUnknownAppointmentType):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "unknown_appointment_type"})
	case errors.Is(err, model.ErrOutsideBookingWindow):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "outside_booking_window"})
	case errors.Is(err, model.ErrInvalidTimeRange):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_time_range"})
	case errors.Is(err, model.ErrSlotTaken):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "slot_no_longer_available"})
	case errors.Is(err, model.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_state_transition"})
	case errors.Is(err, model.ErrNotAuthorized):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "not_authorized"})
	default:
		logger.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
