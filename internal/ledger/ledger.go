// Package ledger appends a row to a Postgres table every time a job
// reaches a terminal state. It is write-only: nothing in this service
// ever reads it back to recover state, so a missing or unreachable
// database degrades to a no-op rather than blocking job execution.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/v-rdyy/jobqueue/internal/domain/job"
	"github.com/v-rdyy/jobqueue/internal/observability"
)

// Ledger records completed jobs for external audit. Call Record
// best-effort from the worker; a failure here must never affect the
// job's own recorded status.
type Ledger struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func New(pool *pgxpool.Pool, prom *observability.Prom) *Ledger {
	return &Ledger{pool: pool, prom: prom}
}

// NoopLedger satisfies the same call sites when DATABASE_URL is unset.
type NoopLedger struct{}

func (NoopLedger) Record(context.Context, job.Job) {}

// Recorder is implemented by both Ledger and NoopLedger.
type Recorder interface {
	Record(ctx context.Context, j job.Job)
}

// Record inserts one append-only row per terminal transition. It swallows
// errors after logging them: the ledger is a side channel, not a source
// of truth the service depends on to operate.
func (l *Ledger) Record(ctx context.Context, j job.Job) {
	insertCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	op := func() error {
		_, err := l.pool.Exec(insertCtx, `
			INSERT INTO job_completions (job_id, task_name, status, attempts, error, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, j.JobID, j.TaskName, string(j.Status), j.Attempts, j.Error, j.UpdatedAt)
		return err
	}

	var err error
	if l.prom != nil {
		err = l.prom.ObserveDB("ledger_insert", op)
	} else {
		err = op()
	}

	if err != nil {
		slog.Default().WarnContext(ctx, "ledger: insert failed", "job_id", j.JobID, "err", err)
	}
}

// Migrate creates the ledger table if it does not already exist. Called
// once at startup when DATABASE_URL is configured.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS job_completions (
			id           BIGSERIAL PRIMARY KEY,
			job_id       TEXT NOT NULL,
			task_name    TEXT NOT NULL,
			status       TEXT NOT NULL,
			attempts     INT NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			completed_at TIMESTAMPTZ NOT NULL,
			recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
