package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/breederbook/scheduling/libs/db"
	"github.com/breederbook/scheduling/services/booking-service/internal/availability"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
	"github.com/breederbook/scheduling/services/booking-service/internal/outbox"
)

// BookingRepository owns the booking ledger. Exclusivity is not checked in Go:
// the bookings table carries an exclusion constraint over
// (breeder_id, buffered_during) for pending/confirmed rows, so
// check-no-overlap and insert are a single atomic operation and concurrent
// requests for the same slot cannot both commit.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const bookingColumns = `
	id, breeder_id, appointment_type_id, appointment_type_name,
	duration_minutes, buffer_before_minutes, buffer_after_minutes,
	start_time, end_time,
	customer_name, customer_email, customer_phone, COALESCE(contact_id, ''),
	status, COALESCE(cancel_reason, ''), cancelled_at,
	manage_token, COALESCE(google_event_id, ''), sync_state, created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var durationMins, bufBeforeMins, bufAfterMins int
	err := row.Scan(
		&b.ID, &b.BreederID, &b.AppointmentTypeID, &b.AppointmentTypeName,
		&durationMins, &bufBeforeMins, &bufAfterMins,
		&b.StartTime, &b.EndTime,
		&b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.ContactID,
		&b.Status, &b.CancelReason, &b.CancelledAt,
		&b.ManageToken, &b.GoogleEventID, &b.SyncState, &b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.Status.Valid() {
		return model.Booking{}, fmt.Errorf("booking %s: unknown status %q", b.ID, b.Status)
	}
	b.Duration = time.Duration(durationMins) * time.Minute
	b.BufferBefore = time.Duration(bufBeforeMins) * time.Minute
	b.BufferAfter = time.Duration(bufAfterMins) * time.Minute
	return b, nil
}

// CreateBooking inserts the booking and its outbox events in one transaction.
// eventsFn runs after the insert, on the stored row, so payloads carry the
// assigned id. An overlap with another pending/confirmed booking returns
// model.ErrSlotTaken.
func (r *BookingRepository) CreateBooking(ctx context.Context, b *model.Booking, eventsFn func(model.Booking) []outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.insertBooking(ctx, tx, b); err != nil {
		return err
	}
	if eventsFn != nil {
		for _, evt := range eventsFn(*b) {
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

// CreateBookingIdempotent is CreateBooking guarded by a client-supplied
// idempotency key: a retried request returns the originally created booking
// instead of a spurious conflict.
func (r *BookingRepository) CreateBookingIdempotent(ctx context.Context, key string, b *model.Booking, eventsFn func(model.Booking) []outbox.Event) (replayID string, replayed bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (breeder_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (breeder_id, idempotency_key) DO NOTHING
	`, b.BreederID, key)
	if err != nil {
		return "", false, err
	}

	var existing *string
	err = tx.QueryRow(ctx, `
		SELECT booking_id::text
		FROM booking_idempotency_keys
		WHERE breeder_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, b.BreederID, key).Scan(&existing)
	if err != nil {
		return "", false, err
	}
	if existing != nil && *existing != "" {
		return *existing, true, tx.Commit(ctx)
	}

	if err := r.insertBooking(ctx, tx, b); err != nil {
		return "", false, err
	}
	if eventsFn != nil {
		for _, evt := range eventsFn(*b) {
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return "", false, err
			}
		}
	}
	_, err = tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3, updated_at = now()
		WHERE breeder_id = $1 AND idempotency_key = $2
	`, b.BreederID, key, b.ID)
	if err != nil {
		return "", false, err
	}
	return "", false, tx.Commit(ctx)
}

func (r *BookingRepository) insertBooking(ctx context.Context, tx pgx.Tx, b *model.Booking) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(breeder_id, appointment_type_id, appointment_type_name,
			 duration_minutes, buffer_before_minutes, buffer_after_minutes,
			 start_time, end_time, buffered_during,
			 customer_name, customer_email, customer_phone, contact_id,
			 status, manage_token, sync_state)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8,
			 tstzrange($7 - make_interval(mins => $5), $8 + make_interval(mins => $6), '[)'),
			 $9, $10, $11, NULLIF($12, ''), $13, $14, $15)
		RETURNING id, created_at
	`,
		b.BreederID, b.AppointmentTypeID, b.AppointmentTypeName,
		int(b.Duration.Minutes()), int(b.BufferBefore.Minutes()), int(b.BufferAfter.Minutes()),
		b.StartTime, b.EndTime,
		b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.ContactID,
		b.Status, b.ManageToken, b.SyncState,
	).Scan(&b.ID, &b.CreatedAt)
	if isExclusionViolation(err) {
		return model.ErrSlotTaken
	}
	return err
}

// TransitionBooking applies a guarded status change. The row is locked FOR
// UPDATE, the transition table is consulted, and the update plus the events
// returned by eventsFn are committed together; an illegal transition mutates
// nothing.
func (r *BookingRepository) TransitionBooking(ctx context.Context, id string, to model.Status, reason string, eventsFn func(model.Booking) []outbox.Event) (model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, model.ErrNotFound
		}
		return model.Booking{}, err
	}

	if !model.CanTransition(b.Status, to) {
		return model.Booking{}, model.ErrInvalidTransition
	}

	if to == model.StatusCancelled {
		var cancelledAt time.Time
		err = tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $2, cancel_reason = NULLIF($3, ''), cancelled_at = now()
			WHERE id = $1
			RETURNING cancelled_at
		`, id, to, reason).Scan(&cancelledAt)
		if err != nil {
			return model.Booking{}, err
		}
		b.CancelledAt = &cancelledAt
		b.CancelReason = reason
	} else {
		if _, err = tx.Exec(ctx, `UPDATE bookings SET status = $2 WHERE id = $1`, id, to); err != nil {
			return model.Booking{}, err
		}
	}
	b.Status = to

	if eventsFn != nil {
		for _, evt := range eventsFn(b) {
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return model.Booking{}, err
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepository) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, model.ErrNotFound
	}
	return b, err
}

// BufferedIntervals returns the buffered spans of pending/confirmed bookings
// intersecting [from, to), ordered by start.
func (r *BookingRepository) BufferedIntervals(ctx context.Context, breederID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT lower(buffered_during), upper(buffered_during)
		FROM bookings
		WHERE breeder_id = $1
			AND status IN ('pending', 'confirmed')
			AND buffered_during && tstzrange($2, $3, '[)')
		ORDER BY lower(buffered_during)
	`, breederID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

func (r *BookingRepository) ListByBreeder(ctx context.Context, breederID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE breeder_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, breederID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// isExclusionViolation matches Postgres error 23P01 raised by the
// no-overlapping-bookings constraint.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
