package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

type JobRepository interface {
	CreateBatch(ctx context.Context, jobs []*models.SynthesisJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SynthesisJob, error)
	GetByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.SynthesisJob, error)

	// MarkRunning transitions queued -> running and bumps the attempt
	// counter; returns models.ErrStoreConflict if the job is not queued.
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Requeue(ctx context.Context, id uuid.UUID) error

	// RecoverRunning flips every job stuck in running back to queued and
	// returns them, oldest first. Called once at worker startup.
	RecoverRunning(ctx context.Context) ([]*models.SynthesisJob, error)

	// RecoverStalled returns queued jobs untouched since olderThan whose
	// request has no earlier chunk still in flight, bumping updated_at so
	// each stall is reported once per threshold window. These are heads
	// of chains whose queue message was lost; re-enqueueing them is safe
	// because MarkRunning claims conditionally.
	RecoverStalled(ctx context.Context, olderThan time.Time) ([]*models.SynthesisJob, error)

	CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
}
