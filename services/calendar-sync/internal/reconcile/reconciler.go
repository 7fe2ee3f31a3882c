package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/breederbook/scheduling/libs/gcal"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/jobs"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/storage"
)

// Store is the slice of the sync repository the reconciler reads and writes.
type Store interface {
	ListMirrored(ctx context.Context, from, to time.Time) ([]storage.Mirror, error)
	ListUnmirrored(ctx context.Context, from, to time.Time) ([]storage.Mirror, error)
	Unlink(ctx context.Context, bookingID, state string) error
	SetSyncState(ctx context.Context, bookingID, state string) error
}

// JobQueue enqueues push work for the sync worker.
type JobQueue interface {
	Enqueue(ctx context.Context, bookingID, breederID, action string) error
}

// Reconciler periodically compares mirrored bookings against the external
// calendar. A mirror the calendar owner deleted is flagged as drift; the
// booking itself stays untouched, since the calendar is a read-model, never
// an authority. The same pass re-enqueues pushes for confirmed bookings that
// lost (or never got) their mirror, and deletes for mirrors whose booking is
// no longer active.
type Reconciler struct {
	store    Store
	jobs     JobQueue
	provider gcal.Provider
	logger   *slog.Logger
	horizon  time.Duration
	schedule string
}

type Config struct {
	Horizon  time.Duration // how far ahead to compare, default 30 days
	Schedule string        // cron spec, default every 10 minutes
}

func New(store Store, jobsRepo JobQueue, provider gcal.Provider, logger *slog.Logger, cfg Config) *Reconciler {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 30 * 24 * time.Hour
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 10m"
	}
	return &Reconciler{
		store:    store,
		jobs:     jobsRepo,
		provider: provider,
		logger:   logger,
		horizon:  cfg.Horizon,
		schedule: cfg.Schedule,
	}
}

// Run schedules reconciliation passes until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if err := r.Pass(passCtx); err != nil {
			r.logger.Error("reconcile pass failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Pass runs one reconciliation sweep over [now, now+horizon).
func (r *Reconciler) Pass(ctx context.Context) error {
	now := time.Now().UTC()
	from, to := now, now.Add(r.horizon)

	mirrored, err := r.store.ListMirrored(ctx, from, to)
	if err != nil {
		return err
	}

	// One event listing per calendar, not per booking.
	type calKey struct{ breederID, calendarID string }
	byCalendar := map[calKey][]storage.Mirror{}
	for _, m := range mirrored {
		if m.CalendarID == "" {
			continue
		}
		// A mirror whose booking is no longer active should not be on the
		// calendar at all. Re-enqueue the delete instead of comparing it:
		// this also catches cancellations whose event was lost in transit.
		if m.Status != "pending" && m.Status != "confirmed" {
			if err := r.jobs.Enqueue(ctx, m.BookingID, m.BreederID, jobs.ActionDelete); err != nil {
				return err
			}
			continue
		}
		k := calKey{m.BreederID, m.CalendarID}
		byCalendar[k] = append(byCalendar[k], m)
	}

	for k, ms := range byCalendar {
		events, err := r.provider.ListEvents(ctx, k.calendarID, from, to)
		if err != nil {
			// Unreachable calendar proves nothing about drift; skip it this
			// pass rather than flagging every booking on it.
			r.logger.Warn("calendar listing failed; skipping", "err", err, "breeder_id", k.breederID)
			continue
		}
		present := make(map[string]struct{}, len(events))
		for _, ev := range events {
			present[ev.ID] = struct{}{}
		}
		for _, m := range ms {
			if _, ok := present[m.GoogleEventID]; ok {
				continue
			}
			r.logger.Warn("mirrored event missing, flagging drift",
				"booking_id", m.BookingID, "breeder_id", m.BreederID)
			if err := r.store.Unlink(ctx, m.BookingID, "drift"); err != nil {
				return err
			}
		}
	}

	unmirrored, err := r.store.ListUnmirrored(ctx, from, to)
	if err != nil {
		return err
	}
	for _, m := range unmirrored {
		if err := r.jobs.Enqueue(ctx, m.BookingID, m.BreederID, jobs.ActionCreate); err != nil {
			return err
		}
		if err := r.store.SetSyncState(ctx, m.BookingID, "pending"); err != nil {
			return err
		}
	}
	if len(mirrored) > 0 || len(unmirrored) > 0 {
		r.logger.Info("reconcile pass complete",
			"mirrored", len(mirrored), "repushed", len(unmirrored))
	}
	return nil
}
