package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
)

type tariffRepository struct {
	db *PostgresDB
}

func NewTariffRepository(db *PostgresDB) repositories.TariffRepository {
	return &tariffRepository{db: db}
}

const tariffColumns = `id, code, scope, monthly_limit, price_cents, currency, is_visible, description, created_at`

func (r *tariffRepository) GetByCode(ctx context.Context, code string) (*models.Tariff, error) {
	var tariff models.Tariff
	query := `SELECT ` + tariffColumns + ` FROM tariffs WHERE code = $1`

	err := r.db.GetContext(ctx, &tariff, query, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tariff by code: %w", err)
	}
	return &tariff, nil
}

func (r *tariffRepository) GetByID(ctx context.Context, id int) (*models.Tariff, error) {
	var tariff models.Tariff
	query := `SELECT ` + tariffColumns + ` FROM tariffs WHERE id = $1`

	err := r.db.GetContext(ctx, &tariff, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tariff by id: %w", err)
	}
	return &tariff, nil
}

func (r *tariffRepository) ListVisible(ctx context.Context) ([]*models.Tariff, error) {
	var tariffs []*models.Tariff
	query := `SELECT ` + tariffColumns + ` FROM tariffs WHERE is_visible = true ORDER BY price_cents`

	if err := r.db.SelectContext(ctx, &tariffs, query); err != nil {
		return nil, fmt.Errorf("failed to list tariffs: %w", err)
	}
	return tariffs, nil
}
