package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/breederbook/scheduling/libs/db"
	"github.com/breederbook/scheduling/libs/gcal"
	otelx "github.com/breederbook/scheduling/libs/otel"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/storage"
)

// Worker drains due sync jobs and pushes them to the external calendar.
// Provider failures back off exponentially; once a job exhausts its attempts
// the booking is flagged sync_state='error' for manual attention instead of
// retrying forever.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	store     *storage.Repository
	provider  gcal.Provider
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, store *storage.Repository, provider gcal.Provider, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 30 * time.Second
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		store:     store,
		provider:  provider,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("sync batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var done []int64
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		if err := w.execute(jobCtx, job); err != nil {
			attempts := job.Attempts + 1
			nextRunAt := time.Now().UTC().Add(w.backoffFor(attempts))
			w.logger.Error("sync job failed", "err", err,
				"booking_id", job.BookingID, "action", job.Action, "attempt", attempts)
			if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, err.Error()); err != nil {
				return err
			}
			if attempts >= job.MaxAttempts {
				if err := w.store.SetSyncState(jobCtx, job.BookingID, "error"); err != nil {
					return err
				}
			}
			continue
		}
		done = append(done, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, done); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (w *Worker) execute(ctx context.Context, job Job) error {
	m, err := w.store.GetMirror(ctx, job.BookingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch job.Action {
	case ActionCreate:
		// The booking may have been cancelled between enqueue and push.
		if m.Status != "confirmed" || m.CalendarID == "" {
			return nil
		}
		if m.GoogleEventID != "" {
			return nil
		}
		eventID, err := w.provider.CreateEvent(ctx, m.CalendarID, gcal.Event{
			Summary:     m.TypeName + ": " + m.CustomerName,
			Description: "booking " + m.BookingID,
			Start:       m.StartTime,
			End:         m.EndTime,
		})
		if err != nil {
			return err
		}
		return w.store.LinkEvent(ctx, job.BookingID, eventID)

	case ActionDelete:
		if m.GoogleEventID == "" {
			return nil
		}
		err := w.provider.DeleteEvent(ctx, m.CalendarID, m.GoogleEventID)
		if err != nil && !errors.Is(err, gcal.ErrEventNotFound) {
			return err
		}
		return w.store.Unlink(ctx, job.BookingID, "none")

	default:
		w.logger.Error("unknown sync action dropped", "action", job.Action, "booking_id", job.BookingID)
		return nil
	}
}

func (w *Worker) backoffFor(attempts int) time.Duration {
	d := w.backoff
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
