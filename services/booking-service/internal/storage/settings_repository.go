package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/breederbook/scheduling/libs/db"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get loads a breeder's scheduling settings and appointment-type catalog.
// Returns model.ErrNotFound if the breeder never saved settings.
func (r *SettingsRepository) Get(ctx context.Context, breederID string) (*model.SchedulingSettings, error) {
	s := &model.SchedulingSettings{BreederID: breederID}
	var weeklyJSON []byte
	var minAdvanceHours, maxAdvanceDays, slotIntervalMins int
	err := r.pool.QueryRow(ctx, `
		SELECT timezone, weekly, min_advance_hours, max_advance_days, slot_interval_minutes,
			auto_confirm, sync_enabled, COALESCE(calendar_id, ''), COALESCE(ics_feed_url, ''), updated_at
		FROM scheduling_settings
		WHERE breeder_id = $1
	`, breederID).Scan(
		&s.Timezone, &weeklyJSON, &minAdvanceHours, &maxAdvanceDays, &slotIntervalMins,
		&s.AutoConfirm, &s.SyncEnabled, &s.CalendarID, &s.ICSFeedURL, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(weeklyJSON, &s.Weekly); err != nil {
		return nil, err
	}
	s.MinAdvance = time.Duration(minAdvanceHours) * time.Hour
	s.MaxAdvance = time.Duration(maxAdvanceDays) * 24 * time.Hour
	s.SlotInterval = time.Duration(slotIntervalMins) * time.Minute

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, enabled, display_order
		FROM appointment_types
		WHERE breeder_id = $1
		ORDER BY display_order, name
	`, breederID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		t := model.AppointmentType{BreederID: breederID}
		var durationMins, bufBeforeMins, bufAfterMins int
		if err := rows.Scan(&t.ID, &t.Name, &durationMins, &bufBeforeMins, &bufAfterMins, &t.Enabled, &t.DisplayOrder); err != nil {
			return nil, err
		}
		t.Duration = time.Duration(durationMins) * time.Minute
		t.BufferBefore = time.Duration(bufBeforeMins) * time.Minute
		t.BufferAfter = time.Duration(bufAfterMins) * time.Minute
		s.Types = append(s.Types, t)
	}
	return s, rows.Err()
}

// Save upserts settings and replaces the appointment-type catalog in one
// transaction. Settings are single-writer per breeder, so last-write-wins is
// acceptable here.
func (r *SettingsRepository) Save(ctx context.Context, s *model.SchedulingSettings) error {
	weeklyJSON, err := json.Marshal(s.Weekly)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO scheduling_settings
			(breeder_id, timezone, weekly, min_advance_hours, max_advance_days,
			 slot_interval_minutes, auto_confirm, sync_enabled, calendar_id, ics_feed_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), now())
		ON CONFLICT (breeder_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			weekly = EXCLUDED.weekly,
			min_advance_hours = EXCLUDED.min_advance_hours,
			max_advance_days = EXCLUDED.max_advance_days,
			slot_interval_minutes = EXCLUDED.slot_interval_minutes,
			auto_confirm = EXCLUDED.auto_confirm,
			sync_enabled = EXCLUDED.sync_enabled,
			calendar_id = EXCLUDED.calendar_id,
			ics_feed_url = EXCLUDED.ics_feed_url,
			updated_at = now()
	`, s.BreederID, s.Timezone, weeklyJSON,
		int(s.MinAdvance.Hours()), int(s.MaxAdvance.Hours()/24), int(s.SlotInterval.Minutes()),
		s.AutoConfirm, s.SyncEnabled, s.CalendarID, s.ICSFeedURL,
	)
	if err != nil {
		return err
	}

	// Replace the catalog. Bookings reference types by snapshot, not by row,
	// so removing a type never corrupts history.
	if _, err := tx.Exec(ctx, `DELETE FROM appointment_types WHERE breeder_id = $1`, s.BreederID); err != nil {
		return err
	}
	for _, t := range s.Types {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_types
				(id, breeder_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, enabled, display_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, t.ID, s.BreederID, t.Name,
			int(t.Duration.Minutes()), int(t.BufferBefore.Minutes()), int(t.BufferAfter.Minutes()),
			t.Enabled, t.DisplayOrder)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
