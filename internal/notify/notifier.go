// Package notify fires a best-effort callback whenever a job reaches a
// terminal state. It is a side channel for observability/integration —
// never able to influence the job's recorded status.
package notify

import (
	"context"

	"github.com/v-rdyy/jobqueue/internal/domain/job"
)

// Event is what a Notifier is told about a terminal transition.
type Event struct {
	JobID    string
	TaskName string
	Status   job.Status
	Attempts int
	Error    string
}

// Notifier delivers a terminal-state event. Implementations must not
// block indefinitely; callers are expected to apply their own timeout.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// NoopNotifier discards every event. The worker pool uses it when it is
// given no notifier at all.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Event) error { return nil }
