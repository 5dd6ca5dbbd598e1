package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/v-rdyy/jobqueue/internal/cache"
	"github.com/v-rdyy/jobqueue/internal/domain/job"
	"github.com/v-rdyy/jobqueue/internal/queue"
	"github.com/v-rdyy/jobqueue/internal/store"
)

// createJobRequest is the recognized body of POST /jobs. Fields mirror
// the wire contract exactly; unrecognized fields are ignored by
// ShouldBindJSON. binding tags are enforced by gin's go-playground/
// validator integration; the "task" rule is special-cased below so its
// failure produces a stable literal error string.
type createJobRequest struct {
	Task           string          `json:"task" binding:"required"`
	Payload        json.RawMessage `json:"payload"`
	MaxRetries     *int            `json:"max_retries" binding:"omitempty,gte=0"`
	ClientJobID    string          `json:"client_job_id"`
	TimeoutSeconds *float64        `json:"timeout" binding:"omitempty,gt=0"`
}

// jobResponse is the GET /jobs/:job_id body. It deliberately omits
// payload and timeout: the status API reports outcome, not the request
// that produced it.
type jobResponse struct {
	JobID      string          `json:"job_id"`
	Status     string          `json:"status"`
	TaskName   string          `json:"task_name"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toJobResponse(j job.Job) jobResponse {
	return jobResponse{
		JobID:      j.JobID,
		Status:     string(j.Status),
		TaskName:   j.TaskName,
		Attempts:   j.Attempts,
		MaxRetries: j.MaxRetries,
		Result:     j.Result,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}

// JobsHandler implements the submission and status endpoints.
type JobsHandler struct {
	store             *store.Store
	queue             *queue.Queue
	statusCache       *cache.Cache
	defaultMaxRetries int
}

func NewJobsHandler(st *store.Store, q *queue.Queue, statusCache *cache.Cache, defaultMaxRetries int) *JobsHandler {
	return &JobsHandler{
		store:             st,
		queue:             q,
		statusCache:       statusCache,
		defaultMaxRetries: defaultMaxRetries,
	}
}

// CreateJob handles POST /jobs.
func (h *JobsHandler) CreateJob(ctx *gin.Context) {
	var req createJobRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
		return
	}

	payload := req.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	maxRetries := h.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	var timeout *time.Duration
	if req.TimeoutSeconds != nil {
		d := time.Duration(*req.TimeoutSeconds * float64(time.Second))
		timeout = &d
	}

	j, created := h.store.CreateJob(job.CreateRequest{
		TaskName:    req.Task,
		Payload:     payload,
		MaxRetries:  maxRetries,
		ClientJobID: req.ClientJobID,
		Timeout:     timeout,
	})

	// A resubmission under the same client_job_id is not re-enqueued: the
	// store already resolved it to the existing record, terminal or not.
	if created {
		h.queue.Enqueue(j.JobID)
	}

	// The wire contract always reports status=pending here, even when a
	// resubmission resolves to an already-terminal job: this endpoint
	// reports submission, not current status. Callers poll GET /jobs/:id
	// for the real status.
	ctx.JSON(http.StatusCreated, gin.H{"job_id": j.JobID, "status": string(job.StatusPending)})
}

// GetJob handles GET /jobs/:job_id.
func (h *JobsHandler) GetJob(ctx *gin.Context) {
	jobID := ctx.Param("job_id")

	if h.statusCache != nil {
		if cached, ok := h.statusCache.Get(jobID); ok {
			ctx.JSON(http.StatusOK, cached)
			return
		}
	}

	j, ok := h.store.GetJob(jobID)
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	resp := toJobResponse(j)
	if h.statusCache != nil {
		h.statusCache.Set(jobID, resp)
	}
	ctx.JSON(http.StatusOK, resp)
}

// bindErrorMessage reduces a bind/validation error to the single string
// the wire contract carries. A missing task always produces the same
// literal; any other validator rule produces a message naming the field
// and rule, and a body that isn't even valid JSON falls back to the same
// "task is required" literal.
func bindErrorMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if fe.Field() == "Task" {
				return "task is required"
			}
		}
		fe := ve[0]
		return fe.Field() + " failed " + fe.Tag() + " validation"
	}
	return "task is required"
}
