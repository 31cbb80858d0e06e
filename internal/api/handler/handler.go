package handler

import (
	"context"
	"log/slog"

	"github.com/forgelabs/genjobs/internal/lifecycle"
	"github.com/forgelabs/genjobs/internal/stream"
)

// JobPublisher hands created jobs off to the worker fleet.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// HealthFunc probes the service's dependencies. The map carries one entry
// per dependency with "ok" or the failure reason.
type HealthFunc func(ctx context.Context) (healthy bool, details map[string]string)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Machine *lifecycle.Machine
	Stream  *stream.Controller
	Queue   JobPublisher
	Health  HealthFunc
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	machine *lifecycle.Machine
	stream  *stream.Controller
	queue   JobPublisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		machine: deps.Machine,
		stream:  deps.Stream,
		queue:   deps.Queue,
	}
}
