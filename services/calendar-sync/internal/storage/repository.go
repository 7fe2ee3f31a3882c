package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/breederbook/scheduling/libs/db"
)

// ErrNotFound is returned when the referenced booking or settings row no
// longer exists. Sync work for vanished rows is simply dropped.
var ErrNotFound = errors.New("storage: not found")

// Repository is the sync side's view of the shared scheduling schema. It
// owns the sync_state and google_event_id columns; the booking engine only
// ever writes the initial 'none'.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

type SyncConfig struct {
	Enabled    bool
	CalendarID string
}

// SyncConfig returns a breeder's mirror configuration. A breeder without
// saved settings simply has sync disabled.
func (r *Repository) SyncConfig(ctx context.Context, breederID string) (SyncConfig, error) {
	var cfg SyncConfig
	err := r.pool.QueryRow(ctx, `
		SELECT sync_enabled, COALESCE(calendar_id, '')
		FROM scheduling_settings
		WHERE breeder_id = $1
	`, breederID).Scan(&cfg.Enabled, &cfg.CalendarID)
	if errors.Is(err, pgx.ErrNoRows) {
		return SyncConfig{}, nil
	}
	if err != nil {
		return SyncConfig{}, err
	}
	if cfg.CalendarID == "" {
		cfg.Enabled = false
	}
	return cfg, nil
}

// Mirror is the slice of a booking the calendar push needs.
type Mirror struct {
	BookingID     string
	BreederID     string
	CalendarID    string
	TypeName      string
	CustomerName  string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	GoogleEventID string
	SyncState     string
}

const mirrorColumns = `
	b.id, b.breeder_id, COALESCE(s.calendar_id, ''), b.appointment_type_name,
	b.customer_name, b.start_time, b.end_time, b.status,
	COALESCE(b.google_event_id, ''), b.sync_state`

func scanMirror(row pgx.Row) (Mirror, error) {
	var m Mirror
	err := row.Scan(&m.BookingID, &m.BreederID, &m.CalendarID, &m.TypeName,
		&m.CustomerName, &m.StartTime, &m.EndTime, &m.Status,
		&m.GoogleEventID, &m.SyncState)
	return m, err
}

func (r *Repository) GetMirror(ctx context.Context, bookingID string) (Mirror, error) {
	m, err := scanMirror(r.pool.QueryRow(ctx, `
		SELECT `+mirrorColumns+`
		FROM bookings b
		JOIN scheduling_settings s ON s.breeder_id = b.breeder_id
		WHERE b.id = $1
	`, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Mirror{}, ErrNotFound
	}
	return m, err
}

func (r *Repository) SetSyncState(ctx context.Context, bookingID, state string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings SET sync_state = $2 WHERE id = $1
	`, bookingID, state)
	return err
}

// LinkEvent records a successful push.
func (r *Repository) LinkEvent(ctx context.Context, bookingID, googleEventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings SET google_event_id = $2, sync_state = 'synced' WHERE id = $1
	`, bookingID, googleEventID)
	return err
}

// Unlink clears the mirror reference and records the given state
// ('none' after a deliberate delete, 'drift' when the event vanished).
func (r *Repository) Unlink(ctx context.Context, bookingID, state string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings SET google_event_id = NULL, sync_state = $2 WHERE id = $1
	`, bookingID, state)
	return err
}

// ListMirrored returns bookings that claim a live mirror in [from, to), for
// drift detection.
func (r *Repository) ListMirrored(ctx context.Context, from, to time.Time) ([]Mirror, error) {
	return r.listMirrors(ctx, `
		SELECT `+mirrorColumns+`
		FROM bookings b
		JOIN scheduling_settings s ON s.breeder_id = b.breeder_id
		WHERE b.sync_state = 'synced'
		  AND s.sync_enabled
		  AND b.start_time >= $1 AND b.start_time < $2
		ORDER BY b.breeder_id, b.start_time
	`, from, to)
}

// ListUnmirrored returns confirmed bookings in [from, to) that should have a
/// mirror but don't: never pushed, or flagged drift. The repair pass
// re-enqueues these.
func (r *Repository) ListUnmirrored(ctx context.Context, from, to time.Time) ([]Mirror, error) {
	return r.listMirrors(ctx, `
		SELECT `+mirrorColumns+`
		FROM bookings b
		JOIN scheduling_settings s ON s.breeder_id = b.breeder_id
		WHERE b.status = 'confirmed'
		  AND b.sync_state IN ('none', 'drift')
		  AND s.sync_enabled
		  AND s.calendar_id IS NOT NULL
		  AND b.start_time >= $1 AND b.start_time < $2
		ORDER BY b.breeder_id, b.start_time
	`, from, to)
}

func (r *Repository) listMirrors(ctx context.Context, query string, args ...any) ([]Mirror, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mirror
	for rows.Next() {
		m, err := scanMirror(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
