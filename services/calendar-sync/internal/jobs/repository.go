package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/breederbook/scheduling/libs/db"
	otelx "github.com/breederbook/scheduling/libs/otel"
)

// Actions a sync job can perform against the external calendar.
const (
	ActionCreate = "create"
	ActionDelete = "delete"
)

type Job struct {
	ID          int64
	BookingID   string
	BreederID   string
	Action      string
	Traceparent string
	Tracestate  string
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Enqueue inserts a sync job keyed on (booking, action). A pending job is
// left untouched; a processed or failed one is re-armed, which is how the
// repair pass re-pushes a drifted mirror without growing the table.
func (r *Repository) Enqueue(ctx context.Context, bookingID, breederID, action string) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_sync_jobs (idempotency_key, booking_id, breeder_id, action, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			status = 'pending',
			attempts = 0,
			next_run_at = now(),
			last_error = NULL,
			updated_at = now()
		WHERE calendar_sync_jobs.status IN ('processed', 'failed')
	`, bookingID+"|"+action, bookingID, breederID, action, traceparent, tracestate)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, booking_id, breeder_id, action, traceparent, tracestate, attempts, max_attempts, next_run_at
		FROM calendar_sync_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.BookingID, &j.BreederID, &j.Action, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE calendar_sync_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := "pending"
	if attempts >= maxAttempts {
		status = "failed"
	}
	_, err := tx.Exec(ctx, `
		UPDATE calendar_sync_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
