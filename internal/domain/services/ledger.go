package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
)

// UsageLedger meters synthesis requests against monthly entitlements.
// Reservation happens before the job is queued so that concurrent
// submissions from one account cannot overshoot the quota; a job that
// fails permanently releases its unit back.
type UsageLedger struct {
	usageRepo repositories.UsageRepository
	logger    *slog.Logger
}

func NewUsageLedger(usageRepo repositories.UsageRepository, logger *slog.Logger) *UsageLedger {
	return &UsageLedger{usageRepo: usageRepo, logger: logger}
}

// CheckAndReserve admits the request and provisionally spends one quota
// unit, or returns models.ErrQuotaExceeded. The underlying increment is
// a single conditional statement; when it reports no change the counter
// is re-read once to distinguish a full quota from a lost race.
func (l *UsageLedger) CheckAndReserve(ctx context.Context, userID int64, at time.Time, limit int) error {
	if limit == 0 {
		return models.ErrQuotaExceeded
	}

	period := models.PeriodKey(at)
	reserved, err := l.usageRepo.ReserveUnit(ctx, userID, period, limit)
	if err != nil {
		// A store outage must never admit unmetered usage: deny and let
		// the user retry later.
		return fmt.Errorf("ledger unavailable: %w", err)
	}
	if reserved {
		return nil
	}

	usage, err := l.usageRepo.GetPeriod(ctx, userID, period)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrStoreConflict
		}
		return fmt.Errorf("ledger unavailable: %w", err)
	}
	if limit != models.UnlimitedQuota && usage.TTSCount >= limit {
		return models.ErrQuotaExceeded
	}

	// The counter was below the limit on re-read, yet the reservation
	// did not apply: another writer interleaved. One retry, then give up.
	reserved, err = l.usageRepo.ReserveUnit(ctx, userID, period, limit)
	if err != nil {
		return fmt.Errorf("ledger unavailable: %w", err)
	}
	if !reserved {
		return models.ErrStoreConflict
	}
	return nil
}

// Commit finalizes a reservation after delivery. The unit was already
// counted at reservation time; this records character volume for
// reporting. Callers pass the admission period, not the current one, so
// a request straddling a month rollover settles where it was reserved.
func (l *UsageLedger) Commit(ctx context.Context, userID int64, period string, chars int64) error {
	if err := l.usageRepo.CommitChars(ctx, userID, period, chars); err != nil {
		l.logger.Error("failed to commit usage", "user_id", userID, "period", period, "error", err)
		return err
	}
	return nil
}

// Release hands a reserved unit back after a permanent failure so that
// failed jobs have a net-zero quota effect. As with Commit, period is
// the period the unit was reserved in.
func (l *UsageLedger) Release(ctx context.Context, userID int64, period string) error {
	if err := l.usageRepo.ReleaseUnit(ctx, userID, period); err != nil {
		l.logger.Error("failed to release usage unit", "user_id", userID, "period", period, "error", err)
		return err
	}
	return nil
}

// Remaining reports how many units the account still has in the current
// period; models.UnlimitedQuota means no cap.
func (l *UsageLedger) Remaining(ctx context.Context, userID int64, at time.Time, limit int) (int, error) {
	if limit == models.UnlimitedQuota {
		return models.UnlimitedQuota, nil
	}

	usage, err := l.usageRepo.GetPeriod(ctx, userID, models.PeriodKey(at))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return limit, nil
		}
		return 0, err
	}

	remaining := limit - usage.TTSCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
