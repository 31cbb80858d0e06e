package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgelabs/genjobs/internal/api/dto"
	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/internal/jobstore"
	"github.com/forgelabs/genjobs/internal/lifecycle"
	"github.com/forgelabs/genjobs/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateJob handles POST /api/v1/jobs
// Creates a new generation job and enqueues it for a worker
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	created, err := h.machine.Create(c.Request.Context(), lifecycle.CreateParams{
		Type:        req.Type,
		UserID:      req.UserID,
		Config:      req.Config,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		if errors.Is(err, job.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	if err := h.queue.PublishJob(c.Request.Context(), created.JobID); err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_id", created.JobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateJobResponse{
		JobID:     created.JobID,
		Status:    created.Status,
		CreatedAt: created.CreatedAt.Format(time.RFC3339),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the current snapshot of a job, the pull-style read channel
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	j, err := h.machine.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobSnapshot(j))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := jobstore.JobFilter{
		UserID:   req.UserID,
		Type:     req.Type,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.machine.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	snapshots := make([]dto.JobSnapshot, len(jobs))
	for i := range jobs {
		snapshots[i] = dto.NewJobSnapshot(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&jobstore.Cursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       snapshots,
		NextCursor: nextCursor,
	})
}

// StreamJob handles GET /api/v1/jobs/:job_id/stream
// Serves the live event stream (SSE) for one job: a connected event,
// progress ticks, and a single terminal event before the stream closes.
func (h *JobHandler) StreamJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	// Resolve existence before switching the response to an event stream,
	// so an unknown job still gets a proper 404 body.
	if _, err := h.machine.Get(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// The request context is cancelled when the consumer disconnects, which
	// tears down the observation loop and its ticker.
	err := h.stream.Run(c.Request.Context(), jobID, func(ev stream.Event) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		c.SSEvent(ev.Name, ev.Data)
		c.Writer.Flush()
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("Job stream ended",
			slog.String("job_id", jobID),
			slog.String("reason", err.Error()),
		)
	}
}
