// Package generate runs the opaque generation step of a job against an
// upstream provider and persists the produced artifact. Each job type has
// its own generator; all of them report progress through a callback so the
// worker can forward it to the job record.
package generate

import (
	"context"

	"github.com/forgelabs/genjobs/internal/job"
)

// ProgressFunc receives progress reports in percent. Implementations must
// tolerate out-of-order calls; the record store drops stale values.
type ProgressFunc func(percent int)

// Generator produces one result version for a job.
type Generator interface {
	Generate(ctx context.Context, j *job.Job, report ProgressFunc) (*job.VersionPayload, error)
}

// Registry maps job types to their generators.
type Registry map[string]Generator

// For returns the generator registered for jobType.
func (r Registry) For(jobType string) (Generator, bool) {
	g, ok := r[jobType]
	return g, ok
}
