package http

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/v-rdyy/jobqueue/internal/cache"
	"github.com/v-rdyy/jobqueue/internal/http/handlers"
	"github.com/v-rdyy/jobqueue/internal/http/middlewares"
	"github.com/v-rdyy/jobqueue/internal/observability"
	"github.com/v-rdyy/jobqueue/internal/queue"
	"github.com/v-rdyy/jobqueue/internal/ratelimit"
	"github.com/v-rdyy/jobqueue/internal/store"
)

// NewRouter wires the two job endpoints and the ambient surface
// (health, readiness, metrics) behind the standard middleware chain.
// submitLimiter guards POST /jobs only: status polling is unlimited.
func NewRouter(st *store.Store, q *queue.Queue, statusCache *cache.Cache, defaultMaxRetries int, submitLimiter ratelimit.Limiter, prom *observability.Prom) *gin.Engine {
	if os.Getenv("APP_ENV") != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("jobqueue"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.CORSMiddleware([]string{"http://localhost:3000"}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1MB max body
	r.Use(middlewares.RequireJSON())
	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}

	health := handlers.NewHealthHandler(st, q)
	jobs := handlers.NewJobsHandler(st, q, statusCache, defaultMaxRetries)

	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if prom != nil {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.POST("/jobs", middlewares.RateLimiterMiddleware(submitLimiter, middlewares.KeyByIP), jobs.CreateJob)
	r.GET("/jobs/:job_id", jobs.GetJob)

	return r
}
