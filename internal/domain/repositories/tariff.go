package repositories

import (
	"context"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

type TariffRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Tariff, error)
	GetByID(ctx context.Context, id int) (*models.Tariff, error)
	ListVisible(ctx context.Context) ([]*models.Tariff, error)
}
