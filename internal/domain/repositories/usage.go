package repositories

import (
	"context"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

type UsageRepository interface {
	// ReserveUnit atomically increments the period counter iff the
	// current count is below limit (or limit is models.UnlimitedQuota).
	// It reports whether the increment was applied. The row is created
	// on first touch. Check-then-act races are impossible because the
	// comparison and the increment happen in one statement.
	ReserveUnit(ctx context.Context, userID int64, period string, limit int) (bool, error)

	// ReleaseUnit undoes one reservation, flooring the counter at zero.
	ReleaseUnit(ctx context.Context, userID int64, period string) error

	// CommitChars records delivered characters for reporting.
	CommitChars(ctx context.Context, userID int64, period string, chars int64) error

	GetPeriod(ctx context.Context, userID int64, period string) (*models.UsagePeriod, error)
}
