package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
)

type jobRepository struct {
	db *PostgresDB
}

func NewJobRepository(db *PostgresDB) repositories.JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, request_id, user_id, period, chat_id, chat_type, chunk_index, chunk_count,
       text, fingerprint, status, attempts, failure_reason, created_at, updated_at`

func (r *jobRepository) CreateBatch(ctx context.Context, jobs []*models.SynthesisJob) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO synthesis_jobs (id, request_id, user_id, period, chat_id, chat_type,
		                            chunk_index, chunk_count, text, fingerprint, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	for _, job := range jobs {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		if job.Status == "" {
			job.Status = models.JobQueued
		}
		err := tx.QueryRowContext(ctx, query, job.ID, job.RequestID, job.UserID,
			job.Period, job.ChatID, job.ChatType, job.ChunkIndex, job.ChunkCount,
			job.Text, job.Fingerprint, job.Status).Scan(&job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create synthesis job: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job batch: %w", err)
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SynthesisJob, error) {
	var job models.SynthesisJob
	query := `SELECT ` + jobColumns + ` FROM synthesis_jobs WHERE id = $1`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (r *jobRepository) GetByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.SynthesisJob, error) {
	var jobs []*models.SynthesisJob
	query := `SELECT ` + jobColumns + ` FROM synthesis_jobs
              WHERE request_id = $1 ORDER BY chunk_index`

	if err := r.db.SelectContext(ctx, &jobs, query, requestID); err != nil {
		return nil, fmt.Errorf("failed to get jobs by request: %w", err)
	}
	return jobs, nil
}

func (r *jobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE synthesis_jobs
              SET status = $2, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
              WHERE id = $1 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, id, models.JobRunning, models.JobQueued)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrStoreConflict
	}
	return nil
}

func (r *jobRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, models.JobSucceeded, nil)
}

func (r *jobRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.setStatus(ctx, id, models.JobFailed, &reason)
}

func (r *jobRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, models.JobQueued, nil)
}

func (r *jobRepository) setStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, reason *string) error {
	query := `UPDATE synthesis_jobs
              SET status = $2, failure_reason = COALESCE($3, failure_reason),
                  updated_at = CURRENT_TIMESTAMP
              WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, reason)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecoverRunning handles crash recovery: anything still marked running
// at startup never reached a terminal transition, so it is requeued for
// at-least-once processing.
func (r *jobRepository) RecoverRunning(ctx context.Context) ([]*models.SynthesisJob, error) {
	var jobs []*models.SynthesisJob
	query := `UPDATE synthesis_jobs
              SET status = $1, updated_at = CURRENT_TIMESTAMP
              WHERE status = $2
              RETURNING ` + jobColumns

	if err := r.db.SelectContext(ctx, &jobs, query, models.JobQueued, models.JobRunning); err != nil {
		return nil, fmt.Errorf("failed to recover running jobs: %w", err)
	}

	// UPDATE ... RETURNING has no defined order; requeue oldest first.
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

// RecoverStalled finds chain heads whose queue message was lost: a chunk
// is only ever enqueued by its predecessor's completion (or by Submit for
// chunk zero), so a queued job with no earlier chunk in flight that has
// sat untouched past the threshold is waiting on a message that will
// never come. The updated_at bump keeps one sweep from re-reporting the
// same job before the next threshold elapses; a duplicate message for a
// job that is merely slow is absorbed by the conditional claim.
func (r *jobRepository) RecoverStalled(ctx context.Context, olderThan time.Time) ([]*models.SynthesisJob, error) {
	var jobs []*models.SynthesisJob
	query := `UPDATE synthesis_jobs j
              SET updated_at = CURRENT_TIMESTAMP
              WHERE j.status = $1 AND j.updated_at < $2
                AND NOT EXISTS (
                    SELECT 1 FROM synthesis_jobs p
                    WHERE p.request_id = j.request_id
                      AND p.chunk_index < j.chunk_index
                      AND p.status IN ($1, $3))
              RETURNING ` + jobColumns

	if err := r.db.SelectContext(ctx, &jobs, query, models.JobQueued, olderThan, models.JobRunning); err != nil {
		return nil, fmt.Errorf("failed to recover stalled jobs: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

func (r *jobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM synthesis_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int64)
	for rows.Next() {
		var status models.JobStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
