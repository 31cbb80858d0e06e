package job

import (
	"encoding/json"
	"time"
)

// Job status constants
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job type constants (closed set)
const (
	TypeTraining        = "lora-training"
	TypeImageGeneration = "image-generation"
	TypeTranscription   = "transcription"
)

// Job is the central entity tracked by the service. The record store is the
// single source of truth; all mutations go through the lifecycle operations.
type Job struct {
	JobID             string          `db:"job_id" json:"job_id"`
	UserID            string          `db:"user_id" json:"user_id"`
	Type              string          `db:"job_type" json:"type"`
	Status            string          `db:"status" json:"status"`
	Progress          int             `db:"progress" json:"progress"`
	Config            json.RawMessage `db:"config" json:"config"`
	Versions          []ResultVersion `db:"-" json:"versions,omitempty"`
	ErrorMessage      string          `db:"error_message" json:"error,omitempty"`
	CallbackURL       string          `db:"callback_url" json:"callback_url,omitempty"`
	CallbackAttempts  int             `db:"callback_attempts" json:"callback_attempts,omitempty"`
	CallbackLastError string          `db:"callback_last_error" json:"callback_last_error,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	StartedAt         *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// ResultVersion is one produced artifact set. Versions are append-only and
// numbered from 1 with no gaps within a job.
type ResultVersion struct {
	Version     int             `db:"version" json:"version"`
	ArtifactURL string          `db:"artifact_url" json:"artifact_url"`
	StorageKey  string          `db:"storage_key" json:"storage_key"`
	SizeBytes   int64           `db:"size_bytes" json:"size_bytes"`
	ContentType string          `db:"content_type" json:"content_type"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// VersionPayload carries the type-specific fields of a result produced by a
// generator. The store assigns the sequence number on append.
type VersionPayload struct {
	ArtifactURL string          `json:"artifact_url"`
	StorageKey  string          `json:"storage_key"`
	SizeBytes   int64           `json:"size_bytes"`
	ContentType string          `json:"content_type"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// IsTerminal reports whether the status is absorbing.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// IsTerminal reports whether the job reached a terminal state.
func (j *Job) IsTerminal() bool {
	return IsTerminal(j.Status)
}

// LatestVersion returns the newest result version, or nil if none exist.
func (j *Job) LatestVersion() *ResultVersion {
	if len(j.Versions) == 0 {
		return nil
	}
	return &j.Versions[len(j.Versions)-1]
}

// KnownType reports whether jobType belongs to the closed set of job kinds.
func KnownType(jobType string) bool {
	switch jobType {
	case TypeTraining, TypeImageGeneration, TypeTranscription:
		return true
	}
	return false
}
