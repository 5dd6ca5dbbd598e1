package notify

import (
	"context"
	"log/slog"
)

// LogNotifier records terminal transitions to the structured logger. It
// is always available and is the fallback when no webhook is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Notify(ctx context.Context, evt Event) error {
	slog.Default().InfoContext(ctx, "job.terminal",
		"job_id", evt.JobID,
		"task_name", evt.TaskName,
		"status", string(evt.Status),
		"attempts", evt.Attempts,
		"error", evt.Error,
	)
	return nil
}
