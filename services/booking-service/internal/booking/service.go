// Package booking is the transaction manager for the booking ledger: it
// revalidates requested slots against freshly computed availability, commits
// atomically, and owns the status state machine.
package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/breederbook/scheduling/services/booking-service/internal/availability"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
	"github.com/breederbook/scheduling/services/booking-service/internal/outbox"
)

type Ledger interface {
	CreateBooking(ctx context.Context, b *model.Booking, eventsFn func(model.Booking) []outbox.Event) error
	CreateBookingIdempotent(ctx context.Context, key string, b *model.Booking, eventsFn func(model.Booking) []outbox.Event) (replayID string, replayed bool, err error)
	TransitionBooking(ctx context.Context, id string, to model.Status, reason string, eventsFn func(model.Booking) []outbox.Event) (model.Booking, error)
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	ListByBreeder(ctx context.Context, breederID string, limit int) ([]model.Booking, error)
}

type SettingsStore interface {
	Get(ctx context.Context, breederID string) (*model.SchedulingSettings, error)
}

type OccupancySource interface {
	BusyIntervals(ctx context.Context, settings *model.SchedulingSettings, from, to time.Time) ([]availability.Interval, bool, error)
}

// ContactLinker is the contact-directory collaborator. Linking is best-effort
// and never blocks a booking.
type ContactLinker interface {
	LinkContact(ctx context.Context, email string) (string, error)
}

type Service struct {
	ledger    Ledger
	settings  SettingsStore
	occupancy OccupancySource
	contacts  ContactLinker
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(ledger Ledger, settings SettingsStore, occupancy OccupancySource, contacts ContactLinker, logger *slog.Logger) *Service {
	return &Service{
		ledger:    ledger,
		settings:  settings,
		occupancy: occupancy,
		contacts:  contacts,
		logger:    logger,
		now:       time.Now,
	}
}

// Slot is a bookable start instant with its implied end.
type Slot struct {
	Start time.Time
	End   time.Time
}

// OpenSlots lists bookable slots for an appointment type in [from, to].
// stale=true means the external calendar could not be consulted and the list
// may omit conflicts the breeder created directly in that calendar.
func (s *Service) OpenSlots(ctx context.Context, breederID, typeID string, from, to time.Time) ([]Slot, bool, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, false, model.ErrInvalidTimeRange
	}
	settings, err := s.settings.Get(ctx, breederID)
	if err != nil {
		return nil, false, err
	}
	at, ok := settings.Type(typeID)
	if !ok || !at.Enabled {
		return nil, false, model.ErrUnknownAppointmentType
	}
	tpl, err := availability.TemplateFromSettings(settings)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	busy, stale, err := s.occupancy.BusyIntervals(ctx,
		settings, from.Add(-at.BufferBefore), to.Add(at.Duration+at.BufferAfter))
	if err != nil {
		return nil, false, err
	}

	starts := availability.OpenSlots(tpl, at, busy, from, to, now)
	slots := make([]Slot, 0, len(starts))
	for _, start := range starts {
		slots = append(slots, Slot{Start: start, End: start.Add(at.Duration)})
	}
	return slots, stale, nil
}

type Request struct {
	BreederID         string
	AppointmentTypeID string
	StartTime         time.Time
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	IdempotencyKey    string
}

// RequestBooking validates the requested slot against recomputed availability
// and commits it. Concurrent requests for overlapping slots are serialized by
// the ledger's range-exclusion guarantee: exactly one commits, the rest get
// model.ErrSlotTaken.
func (s *Service) RequestBooking(ctx context.Context, req Request) (model.Booking, bool, error) {
	if req.StartTime.IsZero() {
		return model.Booking{}, false, model.ErrInvalidTimeRange
	}
	settings, err := s.settings.Get(ctx, req.BreederID)
	if err != nil {
		return model.Booking{}, false, err
	}
	at, ok := settings.Type(req.AppointmentTypeID)
	if !ok || !at.Enabled {
		return model.Booking{}, false, model.ErrUnknownAppointmentType
	}
	tpl, err := availability.TemplateFromSettings(settings)
	if err != nil {
		return model.Booking{}, false, err
	}

	now := s.now()
	if !tpl.WithinWindow(req.StartTime, now) {
		return model.Booking{}, false, model.ErrOutsideBookingWindow
	}

	busy, stale, err := s.occupancy.BusyIntervals(ctx,
		settings, req.StartTime.Add(-at.BufferBefore-24*time.Hour), req.StartTime.Add(at.Duration+at.BufferAfter+24*time.Hour))
	if err != nil {
		return model.Booking{}, false, err
	}
	if !availability.SlotOpen(tpl, at, busy, req.StartTime, now) {
		return model.Booking{}, stale, model.ErrSlotTaken
	}

	b := &model.Booking{
		BreederID:           req.BreederID,
		AppointmentTypeID:   at.ID,
		AppointmentTypeName: at.Name,
		Duration:            at.Duration,
		BufferBefore:        at.BufferBefore,
		BufferAfter:         at.BufferAfter,
		StartTime:           req.StartTime,
		EndTime:             req.StartTime.Add(at.Duration),
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerPhone:       req.CustomerPhone,
		Status:              model.StatusPending,
		ManageToken:         uuid.NewString(),
		SyncState:           model.SyncNone,
	}
	if settings.AutoConfirm {
		b.Status = model.StatusConfirmed
	}

	if s.contacts != nil && req.CustomerEmail != "" {
		contactID, err := s.contacts.LinkContact(ctx, req.CustomerEmail)
		if err != nil {
			s.logger.Warn("contact link failed; booking proceeds unlinked", "err", err)
		} else {
			b.ContactID = contactID
		}
	}

	// Events are built from the inserted row, not from b, so their payloads
	// carry the id the ledger assigns.
	eventsFn := func(created model.Booking) []outbox.Event {
		events := []outbox.Event{eventFor(outbox.EventBookingRequested, created)}
		if created.Status == model.StatusConfirmed {
			events = append(events, eventFor(outbox.EventBookingConfirmed, created))
		}
		return events
	}

	if req.IdempotencyKey != "" {
		replayID, replayed, err := s.ledger.CreateBookingIdempotent(ctx, req.IdempotencyKey, b, eventsFn)
		if err != nil {
			return model.Booking{}, stale, err
		}
		if replayed {
			prev, err := s.ledger.GetBooking(ctx, replayID)
			return prev, stale, err
		}
		return *b, stale, nil
	}

	if err := s.ledger.CreateBooking(ctx, b, eventsFn); err != nil {
		return model.Booking{}, stale, err
	}
	return *b, stale, nil
}

func (s *Service) Confirm(ctx context.Context, breederID, id string) (model.Booking, error) {
	return s.breederTransition(ctx, breederID, id, model.StatusConfirmed, "", outbox.EventBookingConfirmed)
}

func (s *Service) Complete(ctx context.Context, breederID, id string) (model.Booking, error) {
	return s.breederTransition(ctx, breederID, id, model.StatusCompleted, "", outbox.EventBookingCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, breederID, id string) (model.Booking, error) {
	return s.breederTransition(ctx, breederID, id, model.StatusNoShow, "", outbox.EventBookingNoShow)
}

// CancelAuth identifies the caller: the breeder, or the booking customer
// presenting the manage token from their confirmation link.
type CancelAuth struct {
	BreederID   string
	ManageToken string
}

func (s *Service) Cancel(ctx context.Context, auth CancelAuth, id, reason string) (model.Booking, error) {
	b, err := s.ledger.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	authorized := (auth.BreederID != "" && auth.BreederID == b.BreederID) ||
		(auth.ManageToken != "" && auth.ManageToken == b.ManageToken)
	if !authorized {
		return model.Booking{}, model.ErrNotAuthorized
	}
	return s.ledger.TransitionBooking(ctx, id, model.StatusCancelled, reason, func(updated model.Booking) []outbox.Event {
		return []outbox.Event{eventFor(outbox.EventBookingCancelled, updated)}
	})
}

func (s *Service) Get(ctx context.Context, breederID, id string) (model.Booking, error) {
	b, err := s.ledger.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.BreederID != breederID {
		return model.Booking{}, model.ErrNotFound
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, breederID string, limit int) ([]model.Booking, error) {
	return s.ledger.ListByBreeder(ctx, breederID, limit)
}

func (s *Service) breederTransition(ctx context.Context, breederID, id string, to model.Status, reason, eventType string) (model.Booking, error) {
	b, err := s.ledger.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.BreederID != breederID {
		return model.Booking{}, model.ErrNotFound
	}
	return s.ledger.TransitionBooking(ctx, id, to, reason, func(updated model.Booking) []outbox.Event {
		return []outbox.Event{eventFor(eventType, updated)}
	})
}

func eventFor(eventType string, b model.Booking) outbox.Event {
	payload, _ := json.Marshal(map[string]any{
		"booking_id":       b.ID,
		"breeder_id":       b.BreederID,
		"appointment_type": b.AppointmentTypeName,
		"customer_name":    b.CustomerName,
		"customer_email":   b.CustomerEmail,
		"start_time":       b.StartTime.UTC().Format(time.RFC3339),
		"end_time":         b.EndTime.UTC().Format(time.RFC3339),
		"status":           string(b.Status),
		"cancel_reason":    b.CancelReason,
	})
	return outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}
