// Package worker runs the fixed-size pool that dequeues job ids, executes
// the matching task with a per-job timeout, and drives the status
// transitions (retry with no backoff, or terminal success/failure).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/v-rdyy/jobqueue/internal/domain/job"
	"github.com/v-rdyy/jobqueue/internal/ledger"
	"github.com/v-rdyy/jobqueue/internal/notify"
	"github.com/v-rdyy/jobqueue/internal/observability"
	"github.com/v-rdyy/jobqueue/internal/queue"
	"github.com/v-rdyy/jobqueue/internal/store"
	"github.com/v-rdyy/jobqueue/internal/tasks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config tunes the pool. Concurrency is the number of worker goroutines;
// DefaultTimeout applies to jobs submitted without their own timeout.
type Config struct {
	Concurrency    int
	DefaultTimeout time.Duration
	ShutdownGrace  time.Duration
}

// Pool owns the worker goroutines. It is the only component that
// transitions a job out of pending/running.
type Pool struct {
	cfg      Config
	store    *store.Store
	queue    *queue.Queue
	registry *tasks.Registry
	notifier notify.Notifier
	ledger   ledger.Recorder
	metrics  *observability.JobMetrics
}

func New(cfg Config, st *store.Store, q *queue.Queue, registry *tasks.Registry, notifier notify.Notifier, rec ledger.Recorder) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if rec == nil {
		rec = ledger.NoopLedger{}
	}

	return &Pool{
		cfg:      cfg,
		store:    st,
		queue:    q,
		registry: registry,
		notifier: notifier,
		ledger:   rec,
		metrics:  observability.NewJobMetrics(),
	}
}

func (p *Pool) Metrics() *observability.JobMetrics { return p.metrics }

var tracer = otel.Tracer("jobqueue-worker")

// Run blocks until ctx is cancelled, then waits up to ShutdownGrace for
// in-flight jobs to finish before returning. It does not close the queue;
// the caller decides when producers stop accepting new submissions.
func (p *Pool) Run(ctx context.Context) {
	done := make(chan struct{})
	liveCount := make(chan int, p.cfg.Concurrency)

	for i := 0; i < p.cfg.Concurrency; i++ {
		go func(workerNum int) {
			p.runWorker(ctx, workerNum)
			liveCount <- 1
		}(i + 1)
	}

	go func() {
		for i := 0; i < p.cfg.Concurrency; i++ {
			<-liveCount
		}
		close(done)
	}()

	<-ctx.Done()
	slog.Default().Info("worker: shutdown signal received; draining in-flight jobs")

	select {
	case <-done:
		slog.Default().Info("worker: all in-flight jobs completed")
	case <-time.After(p.cfg.ShutdownGrace):
		slog.Default().Warn("worker: shutdown grace exceeded; exiting with jobs still in flight",
			"grace", p.cfg.ShutdownGrace)
	}
}

func (p *Pool) runWorker(ctx context.Context, workerNum int) {
	for {
		jobID, ok := p.queue.Dequeue(ctx)
		if !ok {
			return
		}

		j, ok := p.store.GetJob(jobID)
		if !ok {
			slog.Default().Warn("worker: dequeued unknown job id", "job_id", jobID)
			continue
		}

		p.runOne(ctx, workerNum, j)
	}
}

func (p *Pool) runOne(ctx context.Context, workerNum int, j job.Job) {
	start := time.Now()

	execCtx, span := tracer.Start(ctx, "job.run",
		trace.WithAttributes(
			attribute.String("job.id", j.JobID),
			attribute.String("job.task_name", j.TaskName),
			attribute.Int("job.attempts", j.Attempts),
			attribute.Int("job.max_retries", j.MaxRetries),
			attribute.Int("worker.num", workerNum),
		),
	)
	defer span.End()

	p.store.UpdateJobStatus(j.JobID, job.StatusRunning, nil, "")
	p.metrics.IncClaimed()

	slog.Default().InfoContext(execCtx, "job.start",
		"worker_num", workerNum,
		"job_id", j.JobID,
		"task_name", j.TaskName,
		"attempts", fmt.Sprintf("%d/%d", j.Attempts, j.MaxRetries),
	)

	result, err := p.execute(execCtx, j)
	d := time.Since(start)
	p.metrics.ObserveDuration(d)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Int64("job.duration_ms", d.Milliseconds()))

		p.handleFailure(execCtx, workerNum, j, err)
		return
	}

	// attempts counts prior *failed* attempts only: a task that succeeds
	// on its first try leaves attempts at 0.
	p.store.UpdateJobStatus(j.JobID, job.StatusSuccess, result, "")
	p.metrics.IncDone()

	span.SetStatus(codes.Ok, "success")
	span.SetAttributes(attribute.Int64("job.duration_ms", d.Milliseconds()))

	slog.Default().InfoContext(execCtx, "job.success",
		"worker_num", workerNum,
		"job_id", j.JobID,
		"task_name", j.TaskName,
		"duration_ms", d.Milliseconds(),
	)

	p.notifyTerminal(execCtx, j, job.StatusSuccess, j.Attempts, "")

	final := j
	final.Status = job.StatusSuccess
	final.Result = result
	p.ledger.Record(execCtx, final)
}

// execute runs the task in a goroutine and bounds it with a per-job
// timeout (falling back to the pool default). A task that outlives the
// timeout is reported as failed; its goroutine keeps running to
// completion and its result, if any, is discarded.
func (p *Pool) execute(ctx context.Context, j job.Job) (json.RawMessage, error) {
	fn, err := p.registry.Lookup(j.TaskName)
	if err != nil {
		return nil, err
	}

	timeout := p.cfg.DefaultTimeout
	if j.Timeout != nil {
		timeout = *j.Timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val any
		err error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		val, err := fn(runCtx, j.Payload)
		resultCh <- outcome{val: val, err: err}
	}()

	select {
	case out := <-resultCh:
		if out.err != nil {
			return nil, out.err
		}
		encoded, err := json.Marshal(out.val)
		if err != nil {
			return nil, fmt.Errorf("encode task result: %w", err)
		}
		return encoded, nil
	case <-runCtx.Done():
		return nil, fmt.Errorf("task timed out after %s", timeout)
	}
}

// handleFailure decides between a no-backoff retry and a terminal failure.
// For max_retries >= 1, total attempts at terminal failure equal
// max_retries exactly; a job with max_retries=0 still gets exactly one
// attempt, so it fails with attempts=1.
func (p *Pool) handleFailure(ctx context.Context, workerNum int, j job.Job, execErr error) {
	errMsg := execErr.Error()
	p.store.IncrementAttempts(j.JobID)
	attempts := j.Attempts + 1

	if attempts < j.MaxRetries {
		p.store.UpdateJobStatus(j.JobID, job.StatusPending, nil, "")
		p.metrics.IncRetried()
		p.queue.Enqueue(j.JobID)

		slog.Default().WarnContext(ctx, "job.retry",
			"worker_num", workerNum,
			"job_id", j.JobID,
			"task_name", j.TaskName,
			"attempt", fmt.Sprintf("%d/%d", attempts, j.MaxRetries),
			"err", errMsg,
		)
		return
	}

	p.store.UpdateJobStatus(j.JobID, job.StatusFailed, nil, errMsg)
	p.metrics.IncDeadLettered()

	slog.Default().ErrorContext(ctx, "job.failed",
		"worker_num", workerNum,
		"job_id", j.JobID,
		"task_name", j.TaskName,
		"attempts", attempts,
		"err", errMsg,
	)

	p.notifyTerminal(ctx, j, job.StatusFailed, attempts, errMsg)

	final := j
	final.Status = job.StatusFailed
	final.Attempts = attempts
	final.Error = errMsg
	p.ledger.Record(ctx, final)
}

func (p *Pool) notifyTerminal(ctx context.Context, j job.Job, status job.Status, attempts int, errMsg string) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := p.notifier.Notify(notifyCtx, notify.Event{
		JobID:    j.JobID,
		TaskName: j.TaskName,
		Status:   status,
		Attempts: attempts,
		Error:    errMsg,
	})
	if err != nil && !errors.Is(err, notify.ErrCircuitOpen) {
		slog.Default().WarnContext(ctx, "job.notify_failed", "job_id", j.JobID, "err", err)
	}
}
