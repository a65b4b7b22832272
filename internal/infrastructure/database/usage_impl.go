package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
)

type usageRepository struct {
	db *PostgresDB
}

func NewUsageRepository(db *PostgresDB) repositories.UsageRepository {
	return &usageRepository{db: db}
}

// ReserveUnit is the quota gate. The compare and the increment happen in
// one statement, so N concurrent requests from the same account can
// never push the counter past the limit: the row is created on first
// touch, and the conditional in DO UPDATE rejects increments at the cap.
func (r *usageRepository) ReserveUnit(ctx context.Context, userID int64, period string, limit int) (bool, error) {
	query := `
		INSERT INTO usage_periods (user_id, period, tts_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, period) DO UPDATE
		SET tts_count = usage_periods.tts_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE $3 = -1 OR usage_periods.tts_count < $3`

	result, err := r.db.ExecContext(ctx, query, userID, period, limit)
	if err != nil {
		return false, fmt.Errorf("failed to reserve usage unit: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *usageRepository) ReleaseUnit(ctx context.Context, userID int64, period string) error {
	query := `UPDATE usage_periods
              SET tts_count = GREATEST(tts_count - 1, 0), updated_at = CURRENT_TIMESTAMP
              WHERE user_id = $1 AND period = $2`

	if _, err := r.db.ExecContext(ctx, query, userID, period); err != nil {
		return fmt.Errorf("failed to release usage unit: %w", err)
	}
	return nil
}

func (r *usageRepository) CommitChars(ctx context.Context, userID int64, period string, chars int64) error {
	query := `UPDATE usage_periods
              SET chars_count = chars_count + $3, updated_at = CURRENT_TIMESTAMP
              WHERE user_id = $1 AND period = $2`

	if _, err := r.db.ExecContext(ctx, query, userID, period, chars); err != nil {
		return fmt.Errorf("failed to commit usage chars: %w", err)
	}
	return nil
}

func (r *usageRepository) GetPeriod(ctx context.Context, userID int64, period string) (*models.UsagePeriod, error) {
	var usage models.UsagePeriod
	query := `SELECT user_id, period, tts_count, chars_count, updated_at
              FROM usage_periods WHERE user_id = $1 AND period = $2`

	err := r.db.GetContext(ctx, &usage, query, userID, period)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get usage period: %w", err)
	}
	return &usage, nil
}
