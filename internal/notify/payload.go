package notify

import (
	"encoding/json"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
)

// buildPayload constructs the webhook body for a terminal job.
func buildPayload(j *job.Job) map[string]any {
	if j.Status == job.StatusFailed {
		return failurePayload(j)
	}
	return completionPayload(j)
}

func completionPayload(j *job.Job) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	completedAt := now
	if j.CompletedAt != nil {
		completedAt = j.CompletedAt.UTC().Format(time.RFC3339)
	}

	payload := map[string]any{
		"event":       "job.completed",
		"jobId":       j.JobID,
		"userId":      j.UserID,
		"type":        j.Type,
		"status":      job.StatusCompleted,
		"completedAt": completedAt,
		"timestamp":   now,
	}

	v := j.LatestVersion()
	if v == nil {
		return payload
	}

	switch j.Type {
	case job.TypeTraining:
		var cfg job.TrainingConfig
		_ = json.Unmarshal(j.Config, &cfg)
		payload["lora"] = map[string]any{
			"modelUrl": v.ArtifactURL,
			"version":  v.Version,
			"trigger":  cfg.Trigger,
		}
	case job.TypeImageGeneration:
		payload["image"] = map[string]any{
			"url":       v.ArtifactURL,
			"version":   v.Version,
			"sizeBytes": v.SizeBytes,
		}
	case job.TypeTranscription:
		var cfg job.TranscriptionConfig
		_ = json.Unmarshal(j.Config, &cfg)
		payload["transcript"] = map[string]any{
			"url":     v.ArtifactURL,
			"version": v.Version,
			"format":  cfg.Format,
		}
	}

	return payload
}

func failurePayload(j *job.Job) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	failedAt := now
	if j.CompletedAt != nil {
		failedAt = j.CompletedAt.UTC().Format(time.RFC3339)
	}

	return map[string]any{
		"event":     "job.failed",
		"jobId":     j.JobID,
		"userId":    j.UserID,
		"type":      j.Type,
		"status":    job.StatusFailed,
		"error":     j.ErrorMessage,
		"failedAt":  failedAt,
		"timestamp": now,
	}
}
