package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v-rdyy/jobqueue/internal/domain/job"
	"github.com/v-rdyy/jobqueue/internal/notify"
	"github.com/v-rdyy/jobqueue/internal/queue"
	"github.com/v-rdyy/jobqueue/internal/store"
	"github.com/v-rdyy/jobqueue/internal/tasks"
)

type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, evt notify.Event) error {
	n.events = append(n.events, evt)
	return nil
}

func newTestPool(t *testing.T, registry *tasks.Registry, notifier notify.Notifier) (*Pool, *store.Store, *queue.Queue) {
	t.Helper()
	registry.Freeze()
	st := store.New()
	q := queue.New()
	p := New(Config{Concurrency: 2, DefaultTimeout: time.Second}, st, q, registry, notifier, nil)
	return p, st, q
}

func waitForTerminal(t *testing.T, st *store.Store, jobID string) job.Job {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		j, ok := st.GetJob(jobID)
		require.True(t, ok)
		if j.Status.IsTerminal() {
			return j
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached a terminal state, last status %s", jobID, j.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPool_SuccessPath(t *testing.T) {
	registry := tasks.NewRegistry()
	registry.Register("echo", func(_ context.Context, payload json.RawMessage) (any, error) {
		return string(payload), nil
	})
	notifier := &recordingNotifier{}
	p, st, q := newTestPool(t, registry, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	j, _ := st.CreateJob(job.CreateRequest{TaskName: "echo", Payload: json.RawMessage(`"hi"`), MaxRetries: 3})
	q.Enqueue(j.JobID)

	got := waitForTerminal(t, st, j.JobID)
	assert.Equal(t, job.StatusSuccess, got.Status)
	assert.Equal(t, 0, got.Attempts)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, job.StatusSuccess, notifier.events[0].Status)
}

func TestPool_RetriesThenFails(t *testing.T) {
	registry := tasks.NewRegistry()
	registry.Register("always_fail", func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	notifier := &recordingNotifier{}
	p, st, q := newTestPool(t, registry, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	j, _ := st.CreateJob(job.CreateRequest{TaskName: "always_fail", MaxRetries: 2})
	q.Enqueue(j.JobID)

	got := waitForTerminal(t, st, j.JobID)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "boom", got.Error)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, 2, notifier.events[0].Attempts)
}

func TestPool_RetriesThenSucceedsLeavesNoStaleError(t *testing.T) {
	registry := tasks.NewRegistry()
	var calls atomic.Int32
	registry.Register("fail_once", func(_ context.Context, _ json.RawMessage) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient boom")
		}
		return "ok", nil
	})
	notifier := &recordingNotifier{}
	p, st, q := newTestPool(t, registry, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	j, _ := st.CreateJob(job.CreateRequest{TaskName: "fail_once", MaxRetries: 2})
	q.Enqueue(j.JobID)

	got := waitForTerminal(t, st, j.JobID)
	assert.Equal(t, job.StatusSuccess, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Empty(t, got.Error, "a job that succeeds after a retry must not carry the earlier attempt's error")
	require.Len(t, notifier.events, 1)
	assert.Equal(t, job.StatusSuccess, notifier.events[0].Status)
}

func TestPool_MaxRetriesZeroAllowsExactlyOneAttempt(t *testing.T) {
	registry := tasks.NewRegistry()
	registry.Register("always_fail", func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	p, st, q := newTestPool(t, registry, notify.NoopNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	j, _ := st.CreateJob(job.CreateRequest{TaskName: "always_fail", MaxRetries: 0})
	q.Enqueue(j.JobID)

	got := waitForTerminal(t, st, j.JobID)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestPool_TaskTimeout(t *testing.T) {
	registry := tasks.NewRegistry()
	registry.Register("slow", func(ctx context.Context, _ json.RawMessage) (any, error) {
		select {
		case <-time.After(time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	p, st, q := newTestPool(t, registry, notify.NoopNotifier{})
	p.cfg.DefaultTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	j, _ := st.CreateJob(job.CreateRequest{TaskName: "slow", MaxRetries: 0})
	q.Enqueue(j.JobID)

	got := waitForTerminal(t, st, j.JobID)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "timed out")
}

func TestPool_UnknownTaskFailsImmediately(t *testing.T) {
	registry := tasks.NewRegistry()
	p, st, q := newTestPool(t, registry, notify.NoopNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	j, _ := st.CreateJob(job.CreateRequest{TaskName: "does_not_exist", MaxRetries: 0})
	q.Enqueue(j.JobID)

	got := waitForTerminal(t, st, j.JobID)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.ErrorContains(t, errors.New(got.Error), "unknown task")
}
