package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
)

type subscriptionRepository struct {
	db *PostgresDB
}

func NewSubscriptionRepository(db *PostgresDB) repositories.SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := `
		INSERT INTO subscriptions (id, user_id, tariff_id, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, sub.ID, sub.UserID, sub.TariffID,
		sub.StartsAt, sub.EndsAt).Scan(&sub.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) GetEffective(ctx context.Context, userID int64, asOf time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	query := `
		SELECT id, user_id, tariff_id, starts_at, ends_at, created_at
		FROM subscriptions
		WHERE user_id = $1 AND starts_at <= $2 AND ends_at > $2
		ORDER BY starts_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &sub, query, userID, asOf)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get effective subscription: %w", err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetLatest(ctx context.Context, userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	query := `
		SELECT id, user_id, tariff_id, starts_at, ends_at, created_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &sub, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest subscription: %w", err)
	}
	return &sub, nil
}
