package repositories

import (
	"context"
	"time"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error

	// GetEffective returns the most recent subscription whose validity
	// window contains asOf, or models.ErrNotFound.
	GetEffective(ctx context.Context, userID int64, asOf time.Time) (*models.Subscription, error)

	GetLatest(ctx context.Context, userID int64) (*models.Subscription, error)
}
