package job

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is a position in the job lifecycle state machine.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

var ErrJobNotFound = errors.New("job not found")

// Job is the record a submitter creates and a worker mutates through the
// lifecycle. JSON tags use the wire contract's field names; the status
// endpoint still maps a Job to its own response type, which leaves out
// the payload.
type Job struct {
	JobID      string          `json:"job_id"`
	TaskName   string          `json:"task_name"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	// Timeout is nil when the submitter set none; the worker pool then
	// applies its own default timeout, so no job runs unbounded.
	Timeout   *time.Duration  `json:"-"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateRequest is the input to Store.CreateJob.
type CreateRequest struct {
	TaskName      string
	Payload       json.RawMessage
	MaxRetries    int
	ClientJobID   string
	Timeout       *time.Duration
}

const DefaultMaxRetries = 3

// New builds a fresh pending record. It does not touch the store or the
// idempotency index — that bookkeeping belongs to the caller so the
// check-and-insert stays one critical section.
func New(req CreateRequest) Job {
	now := time.Now().UTC()

	maxRetries := req.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	return Job{
		JobID:      uuid.NewString(),
		TaskName:   req.TaskName,
		Payload:    req.Payload,
		Status:     StatusPending,
		Attempts:   0,
		MaxRetries: maxRetries,
		Timeout:    req.Timeout,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy safe to hand to a caller outside the store's
// mutex: the payload/result byte slices and the Timeout pointer are
// copied, so mutating the clone never aliases the stored record.
func (j Job) Clone() Job {
	out := j
	if j.Payload != nil {
		out.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.Result != nil {
		out.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.Timeout != nil {
		t := *j.Timeout
		out.Timeout = &t
	}
	return out
}
