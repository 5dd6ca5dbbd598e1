package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/v-rdyy/jobqueue/internal/queue"
	"github.com/v-rdyy/jobqueue/internal/store"
)

// HealthHandler serves the liveness and readiness probes. Readiness
// checks the in-process store and queue directly: there is no external
// dependency that must answer before this service can take traffic.
type HealthHandler struct {
	store *store.Store
	queue *queue.Queue
}

func NewHealthHandler(st *store.Store, q *queue.Queue) *HealthHandler {
	return &HealthHandler{store: st, queue: q}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports not ready only if the store or queue handle is missing,
// which would mean the process is still wiring up at startup.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.store == nil || h.queue == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"jobs_tracked": h.store.Len(),
		"queue_depth":  h.queue.Len(),
	})
}
