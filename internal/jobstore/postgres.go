package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgelabs/genjobs/internal/job"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, user_id, job_type, status, progress, config,
	error_message, callback_url, callback_attempts, callback_last_error,
	created_at, started_at, completed_at, updated_at
`

// Postgres is the durable Store implementation backed by PostgreSQL.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres store on an established sqlx connection.
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: logger,
	}
}

func (s *Postgres) CreateJob(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, user_id, job_type, status, progress, config,
			callback_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		j.JobID,
		j.UserID,
		j.Type,
		j.Status,
		j.Progress,
		j.Config,
		j.CallbackURL,
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Postgres) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var j job.Job
	if err := s.db.GetContext(ctx, &j, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if err := s.loadVersions(ctx, &j); err != nil {
		return nil, err
	}

	return &j, nil
}

func (s *Postgres) loadVersions(ctx context.Context, j *job.Job) error {
	query := `
		SELECT version, artifact_url, storage_key, size_bytes, content_type, metadata, created_at
		FROM job_versions
		WHERE job_id = $1
		ORDER BY version ASC
	`

	if err := s.db.SelectContext(ctx, &j.Versions, query, j.JobID); err != nil {
		return fmt.Errorf("failed to load job versions: %w", err)
	}

	return nil
}

func (s *Postgres) ListJobs(ctx context.Context, filter JobFilter) ([]job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []job.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// MarkStarted transitions a queued job to processing using a conditional
// update so that racing workers cannot both claim the transition.
func (s *Postgres) MarkStarted(ctx context.Context, jobID string) (*job.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var j job.Job
	err := s.db.GetContext(ctx, &j, query, job.StatusProcessing, jobID, job.StatusQueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMiss(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to mark job started: %w", err)
	}

	s.logger.Info("Job marked started",
		slog.String("job_id", jobID),
	)

	return &j, nil
}

// SetProgress applies a monotonic progress update. The conditional guards
// both the processing status and non-decreasing progress, so a late report
// from a slow worker is dropped rather than regressing the stored value.
func (s *Postgres) SetProgress(ctx context.Context, jobID string, percent int) (*job.Job, error) {
	query := `
		UPDATE jobs
		SET progress = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		  AND progress <= $1
		RETURNING ` + jobColumns

	var j job.Job
	err := s.db.GetContext(ctx, &j, query, percent, jobID, job.StatusProcessing)
	if err == nil {
		return &j, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to set job progress: %w", err)
	}

	// No row matched: either the job is missing, not processing, or the
	// update was stale. Re-read to tell those apart.
	current, getErr := s.GetJob(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status != job.StatusProcessing {
		return nil, job.ErrInvalidTransition
	}

	// Stale update dropped, return the record unchanged.
	s.logger.Debug("Stale progress update dropped",
		slog.String("job_id", jobID),
		slog.Int("reported", percent),
		slog.Int("stored", current.Progress),
	)
	return current, nil
}

// CompleteJob flips the job terminal and appends the result version in one
// transaction so readers never observe one without the other.
func (s *Postgres) CompleteJob(ctx context.Context, jobID string, payload *job.VersionPayload) (*job.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE jobs
		SET status = $1,
		    progress = 100,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var j job.Job
	err = tx.GetContext(ctx, &j, updateQuery, job.StatusCompleted, jobID, job.StatusProcessing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMiss(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}

	insertQuery := `
		INSERT INTO job_versions (
			job_id, version, artifact_url, storage_key, size_bytes, content_type, metadata, created_at
		) VALUES (
			$1,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM job_versions WHERE job_id = $1),
			$2, $3, $4, $5, $6, NOW()
		)
		RETURNING version, artifact_url, storage_key, size_bytes, content_type, metadata, created_at
	`

	var v job.ResultVersion
	err = tx.GetContext(ctx, &v, insertQuery,
		jobID,
		payload.ArtifactURL,
		payload.StorageKey,
		payload.SizeBytes,
		payload.ContentType,
		payload.Metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append result version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}

	j.Versions = append(j.Versions, v)

	s.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.Int("version", v.Version),
	)

	return &j, nil
}

func (s *Postgres) FailJob(ctx context.Context, jobID string, errorMessage string) (*job.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING ` + jobColumns

	var j job.Job
	err := s.db.GetContext(ctx, &j, query, job.StatusFailed, errorMessage, jobID, job.StatusProcessing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMiss(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to fail job: %w", err)
	}

	s.logger.Info("Job failed",
		slog.String("job_id", jobID),
		slog.String("error", errorMessage),
	)

	return &j, nil
}

func (s *Postgres) RecordCallbackResult(ctx context.Context, jobID string, attempts int, lastError string) error {
	query := `
		UPDATE jobs
		SET callback_attempts = $1,
		    callback_last_error = $2,
		    updated_at = NOW()
		WHERE job_id = $3
	`

	result, err := s.db.ExecContext(ctx, query, attempts, lastError, jobID)
	if err != nil {
		return fmt.Errorf("failed to record callback result: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return job.ErrNotFound
	}

	return nil
}

// classifyMiss distinguishes a missing job from a conditional-update miss.
func (s *Postgres) classifyMiss(ctx context.Context, jobID string) error {
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return job.ErrNotFound
		}
		return fmt.Errorf("failed to inspect job status: %w", err)
	}
	return job.ErrInvalidTransition
}
