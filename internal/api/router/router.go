package router

import (
	"net/http"

	"github.com/forgelabs/genjobs/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		resp := gin.H{
			"status":  "healthy",
			"service": "genjobs-api",
		}

		if deps.Health != nil {
			healthy, details := deps.Health(c.Request.Context())
			resp["dependencies"] = details
			if !healthy {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
			}
		}

		c.JSON(status, resp)
	})

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a new generation job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Current job snapshot (poll channel)
			jobs.GET("/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/stream - Live progress events (SSE)
			jobs.GET("/:job_id/stream", jobHandler.StreamJob)
		}
	}

	return r
}
