package dto

import (
	"encoding/json"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
)

type CreateJobRequest struct {
	UserID      string          `json:"user_id" binding:"required"`
	Type        string          `json:"type" binding:"required"`
	Config      json.RawMessage `json:"config" binding:"required"`
	CallbackURL string          `json:"callback_url" binding:"omitempty,url"`
}

type CreateJobResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type ListJobsRequest struct {
	UserID   string `form:"user_id"`
	Type     string `form:"type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobSnapshot `json:"jobs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// JobSnapshot is the read-channel view of a job. It always reflects a
// consistent point-in-time state: a completed job carries its versions,
// a failed one its error, and never a mix.
type JobSnapshot struct {
	JobID             string           `json:"job_id"`
	UserID            string           `json:"user_id"`
	Type              string           `json:"type"`
	Status            string           `json:"status"`
	Progress          int              `json:"progress"`
	Versions          []VersionSummary `json:"versions,omitempty"`
	LatestVersion     *VersionSummary  `json:"latest_version,omitempty"`
	Error             string           `json:"error,omitempty"`
	CallbackAttempts  int              `json:"callback_attempts,omitempty"`
	CallbackLastError string           `json:"callback_last_error,omitempty"`
	CreatedAt         string           `json:"created_at"`
	StartedAt         string           `json:"started_at,omitempty"`
	CompletedAt       string           `json:"completed_at,omitempty"`
}

// VersionSummary exposes the public fields of one result version.
type VersionSummary struct {
	Version     int    `json:"version"`
	ArtifactURL string `json:"artifact_url"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
	CreatedAt   string `json:"created_at"`
}

// NewJobSnapshot maps a stored job to its API representation.
func NewJobSnapshot(j *job.Job) JobSnapshot {
	snap := JobSnapshot{
		JobID:             j.JobID,
		UserID:            j.UserID,
		Type:              j.Type,
		Status:            j.Status,
		Progress:          j.Progress,
		Error:             j.ErrorMessage,
		CallbackAttempts:  j.CallbackAttempts,
		CallbackLastError: j.CallbackLastError,
		CreatedAt:         j.CreatedAt.Format(time.RFC3339),
	}

	if j.StartedAt != nil {
		snap.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.CompletedAt != nil {
		snap.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}

	for _, v := range j.Versions {
		snap.Versions = append(snap.Versions, VersionSummary{
			Version:     v.Version,
			ArtifactURL: v.ArtifactURL,
			SizeBytes:   v.SizeBytes,
			ContentType: v.ContentType,
			CreatedAt:   v.CreatedAt.Format(time.RFC3339),
		})
	}
	if n := len(snap.Versions); n > 0 {
		snap.LatestVersion = &snap.Versions[n-1]
	}

	return snap
}
