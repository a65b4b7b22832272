package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
)

type paymentRepository struct {
	db *PostgresDB
}

func NewPaymentRepository(db *PostgresDB) repositories.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, user_id, tariff_id, amount_cents, currency, method, status,
       telegram_charge_id, receipt_file_id, decided_by, notes, created_at, updated_at`

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentPending
	}

	query := `
		INSERT INTO payments (id, user_id, tariff_id, amount_cents, currency, method, status,
		                      telegram_charge_id, receipt_file_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, payment.ID, payment.UserID, payment.TariffID,
		payment.AmountCents, payment.Currency, payment.Method, payment.Status,
		payment.TelegramChargeID, payment.ReceiptFileID).Scan(&payment.CreatedAt, &payment.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	err := r.db.GetContext(ctx, &payment, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) ListPending(ctx context.Context, method models.PaymentMethod) ([]*models.Payment, error) {
	var payments []*models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments
              WHERE status = $1 AND method = $2
              ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &payments, query, models.PaymentPending, method); err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return payments, nil
}

// Finalize is the single point where a payment leaves the pending state.
// The WHERE clause on status makes concurrent confirmations race-safe:
// whoever loses sees zero affected rows.
func (r *paymentRepository) Finalize(ctx context.Context, id uuid.UUID, status models.PaymentStatus, decidedBy int64, notes *string) error {
	query := `UPDATE payments
              SET status = $2, decided_by = $3, notes = COALESCE($4, notes),
                  updated_at = CURRENT_TIMESTAMP
              WHERE id = $1 AND status = $5`

	result, err := r.db.ExecContext(ctx, query, id, status, decidedBy, notes, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to finalize payment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return models.ErrPaymentFinalized
	}
	return nil
}

// FinalizeWithSubscription runs the confirm transition and the
// subscription insert in one transaction so the two can never diverge.
func (r *paymentRepository) FinalizeWithSubscription(ctx context.Context, id uuid.UUID, decidedBy int64, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	confirm := `UPDATE payments
              SET status = $2, decided_by = $3, updated_at = CURRENT_TIMESTAMP
              WHERE id = $1 AND status = $4`

	result, err := tx.ExecContext(ctx, confirm, id, models.PaymentConfirmed, decidedBy, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to confirm payment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return models.ErrPaymentFinalized
	}

	create := `INSERT INTO subscriptions (id, user_id, tariff_id, starts_at, ends_at)
              VALUES ($1, $2, $3, $4, $5)
              RETURNING created_at`

	if err := tx.QueryRowContext(ctx, create, sub.ID, sub.UserID, sub.TariffID,
		sub.StartsAt, sub.EndsAt).Scan(&sub.CreatedAt); err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment confirmation: %w", err)
	}
	return nil
}
