package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/breederbook/scheduling/services/booking-service/internal/booking"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

type fakeBookingService struct {
	slots      []booking.Slot
	stale      bool
	booking    model.Booking
	err        error
	gotRequest booking.Request
	gotAuth    booking.CancelAuth
}

func (f *fakeBookingService) OpenSlots(context.Context, string, string, time.Time, time.Time) ([]booking.Slot, bool, error) {
	return f.slots, f.stale, f.err
}

func (f *fakeBookingService) RequestBooking(_ context.Context, req booking.Request) (model.Booking, bool, error) {
	f.gotRequest = req
	return f.booking, f.stale, f.err
}

func (f *fakeBookingService) Confirm(context.Context, string, string) (model.Booking, error) {
	return f.booking, f.err
}

func (f *fakeBookingService) Complete(context.Context, string, string) (model.Booking, error) {
	return f.booking, f.err
}

func (f *fakeBookingService) MarkNoShow(context.Context, string, string) (model.Booking, error) {
	return f.booking, f.err
}

func (f *fakeBookingService) Cancel(_ context.Context, auth booking.CancelAuth, _, _ string) (model.Booking, error) {
	f.gotAuth = auth
	return f.booking, f.err
}

func (f *fakeBookingService) List(context.Context, string, int) ([]model.Booking, error) {
	return []model.Booking{f.booking}, f.err
}

var testBooking = model.Booking{
	ID:                  "bk-1",
	BreederID:           "br-1",
	AppointmentTypeName: "Puppy visit",
	StartTime:           time.Date(2026, 1, 26, 9, 30, 0, 0, time.UTC),
	EndTime:             time.Date(2026, 1, 26, 10, 30, 0, 0, time.UTC),
	Status:              model.StatusPending,
	ManageToken:         "tok-1",
}

func TestSlots(t *testing.T) {
	svc := &fakeBookingService{
		slots: []booking.Slot{{
			Start: time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC),
		}},
		stale: true,
	}
	h := NewBookingHandler(svc, slog.Default())

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/public/slots?breeder_id=br-1&appointment_type_id=t1&from=2026-01-26T00:00:00Z&to=2026-01-27T00:00:00Z", nil)
	rw := httptest.NewRecorder()
	h.Slots(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp slotsResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(resp.Slots) != 1 || resp.Slots[0].StartTime != "2026-01-26T09:00:00Z" {
		t.Fatalf("unexpected slots: %+v", resp.Slots)
	}
	if !resp.AvailabilityStale {
		t.Fatal("expected availability_stale to surface")
	}
}

func TestSlots_MissingParams(t *testing.T) {
	h := NewBookingHandler(&fakeBookingService{}, slog.Default())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?breeder_id=br-1", nil)
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreate(t *testing.T) {
	svc := &fakeBookingService{booking: testBooking}
	h := NewBookingHandler(svc, slog.Default())

	body := `{"breeder_id":"br-1","appointment_type_id":"t1","start_time":"2026-01-26T09:30:00Z","customer_name":"Dana"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")
	rw := httptest.NewRecorder()
	h.Create(rw, req)

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	if svc.gotRequest.IdempotencyKey != "key-1" {
		t.Fatalf("expected idempotency key forwarded, got %q", svc.gotRequest.IdempotencyKey)
	}
	var resp bookingResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.ManageToken != "tok-1" {
		t.Fatal("create response must include the manage token")
	}
}

func TestCreate_SlotTaken(t *testing.T) {
	svc := &fakeBookingService{err: model.ErrSlotTaken}
	h := NewBookingHandler(svc, slog.Default())

	body := `{"breeder_id":"br-1","appointment_type_id":"t1","start_time":"2026-01-26T09:30:00Z","customer_name":"Dana"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Create(rw, req)

	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
	var resp errorBody
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Code != "slot_no_longer_available" {
		t.Fatalf("expected machine-readable conflict code, got %q", resp.Code)
	}
}

func TestConfirm_RequiresBreederHeader(t *testing.T) {
	h := NewBookingHandler(&fakeBookingService{booking: testBooking}, slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/confirm", strings.NewReader(`{"booking_id":"bk-1"}`))
	rw := httptest.NewRecorder()
	h.Confirm(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings/confirm", strings.NewReader(`{"booking_id":"bk-1"}`))
	req.Header.Set(BreederIDHeader, "br-1")
	rw = httptest.NewRecorder()
	h.Confirm(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	// Token must never leak on breeder-side responses.
	if strings.Contains(rw.Body.String(), "tok-1") {
		t.Fatal("manage token leaked in transition response")
	}
}

func TestCancel_ManageToken(t *testing.T) {
	svc := &fakeBookingService{booking: testBooking}
	h := NewBookingHandler(svc, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings/cancel",
		strings.NewReader(`{"booking_id":"bk-1","manage_token":"tok-1","reason":"plans changed"}`))
	rw := httptest.NewRecorder()
	h.Cancel(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	if svc.gotAuth.ManageToken != "tok-1" {
		t.Fatalf("expected token auth forwarded, got %+v", svc.gotAuth)
	}
}

func TestCancel_NoCredentials(t *testing.T) {
	h := NewBookingHandler(&fakeBookingService{}, slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/cancel", strings.NewReader(`{"booking_id":"bk-1"}`))
	rw := httptest.NewRecorder()
	h.Cancel(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}
}

func TestInvalidTransitionMapsToConflict(t *testing.T) {
	h := NewBookingHandler(&fakeBookingService{err: model.ErrInvalidTransition}, slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/complete", strings.NewReader(`{"booking_id":"bk-1"}`))
	req.Header.Set(BreederIDHeader, "br-1")
	rw := httptest.NewRecorder()
	h.Complete(rw, req)
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
}
