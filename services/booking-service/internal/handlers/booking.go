package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/breederbook/scheduling/services/booking-service/internal/booking"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

// BreederIDHeader scopes breeder-facing operations. Authentication happens
// upstream (identity collaborator); this service trusts the header the
// gateway injects.
const BreederIDHeader = "X-Breeder-Id"

type BookingService interface {
	OpenSlots(ctx context.Context, breederID, typeID string, from, to time.Time) ([]booking.Slot, bool, error)
	RequestBooking(ctx context.Context, req booking.Request) (model.Booking, bool, error)
	Confirm(ctx context.Context, breederID, id string) (model.Booking, error)
	Complete(ctx context.Context, breederID, id string) (model.Booking, error)
	MarkNoShow(ctx context.Context, breederID, id string) (model.Booking, error)
	Cancel(ctx context.Context, auth booking.CancelAuth, id, reason string) (model.Booking, error)
	List(ctx context.Context, breederID string, limit int) ([]model.Booking, error)
}

type BookingHandler struct {
	svc    BookingService
	logger *slog.Logger
}

func NewBookingHandler(svc BookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	Slots             []slotItem `json:"slots"`
	AvailabilityStale bool       `json:"availability_stale"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	breederID := strings.TrimSpace(q.Get("breeder_id"))
	typeID := strings.TrimSpace(q.Get("appointment_type_id"))
	if breederID == "" || typeID == "" {
		http.Error(w, "breeder_id and appointment_type_id are required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("from")))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("to")))
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}

	slots, stale, err := h.svc.OpenSlots(r.Context(), breederID, typeID, from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := slotsResponse{Slots: make([]slotItem, 0, len(slots)), AvailabilityStale: stale}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type createBookingRequest struct {
	BreederID         string `json:"breeder_id"`
	AppointmentTypeID string `json:"appointment_type_id"`
	StartTime         string `json:"start_time"`
	CustomerName      string `json:"customer_name"`
	CustomerEmail     string `json:"customer_email"`
	CustomerPhone     string `json:"customer_phone"`
}

type bookingResponse struct {
	BookingID         string `json:"booking_id"`
	AppointmentType   string `json:"appointment_type"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Status            string `json:"status"`
	ManageToken       string `json:"manage_token,omitempty"`
	CancelReason      string `json:"cancel_reason,omitempty"`
	AvailabilityStale bool   `json:"availability_stale,omitempty"`
}

func toBookingResponse(b model.Booking, includeToken, stale bool) bookingResponse {
	resp := bookingResponse{
		BookingID:         b.ID,
		AppointmentType:   b.AppointmentTypeName,
		StartTime:         b.StartTime.UTC().Format(time.RFC3339),
		EndTime:           b.EndTime.UTC().Format(time.RFC3339),
		Status:            string(b.Status),
		CancelReason:      b.CancelReason,
		AvailabilityStale: stale,
	}
	if includeToken {
		resp.ManageToken = b.ManageToken
	}
	return resp
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BreederID = strings.TrimSpace(req.BreederID)
	req.AppointmentTypeID = strings.TrimSpace(req.AppointmentTypeID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.BreederID == "" || req.AppointmentTypeID == "" || req.CustomerName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	b, stale, err := h.svc.RequestBooking(r.Context(), booking.Request{
		BreederID:         req.BreederID,
		AppointmentTypeID: req.AppointmentTypeID,
		StartTime:         startTime,
		CustomerName:      req.CustomerName,
		CustomerEmail:     strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:     strings.TrimSpace(req.CustomerPhone),
		IdempotencyKey:    strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b, true, stale))
}

type transitionRequest struct {
	BookingID   string `json:"booking_id"`
	Reason      string `json:"reason,omitempty"`
	ManageToken string `json:"manage_token,omitempty"`
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.breederTransition(w, r, h.svc.Confirm)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.breederTransition(w, r, h.svc.Complete)
}

func (h *BookingHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.breederTransition(w, r, h.svc.MarkNoShow)
}

// Cancel accepts either the breeder header or the customer's manage token.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}
	auth := booking.CancelAuth{
		BreederID:   strings.TrimSpace(r.Header.Get(BreederIDHeader)),
		ManageToken: strings.TrimSpace(req.ManageToken),
	}
	if auth.BreederID == "" && auth.ManageToken == "" {
		http.Error(w, "breeder header or manage_token required", http.StatusForbidden)
		return
	}

	b, err := h.svc.Cancel(r.Context(), auth, req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, false, false))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	breederID := strings.TrimSpace(r.Header.Get(BreederIDHeader))
	if breederID == "" {
		http.Error(w, "breeder header required", http.StatusUnauthorized)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.svc.List(r.Context(), breederID, limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingResponse(b, false, false))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) breederTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (model.Booking, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	breederID := strings.TrimSpace(r.Header.Get(BreederIDHeader))
	if breederID == "" {
		http.Error(w, "breeder header required", http.StatusUnauthorized)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	b, err := fn(r.Context(), breederID, req.BookingID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, false, false))
}
