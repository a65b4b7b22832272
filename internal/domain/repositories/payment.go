package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListPending(ctx context.Context, method models.PaymentMethod) ([]*models.Payment, error)

	// Finalize transitions a pending payment to a terminal status. It
	// must be a single conditional update: it returns models.ErrPaymentFinalized
	// when the payment already left the pending state, so a second
	// confirmation can never succeed twice.
	Finalize(ctx context.Context, id uuid.UUID, status models.PaymentStatus, decidedBy int64, notes *string) error

	// FinalizeWithSubscription confirms a pending payment and creates its
	// subscription in one transaction. Either both land or neither does:
	// a crash mid-confirmation can never leave a confirmed payment
	// without a subscription. The status condition is the same as in
	// Finalize, so a repeated confirmation returns
	// models.ErrPaymentFinalized without a second subscription.
	FinalizeWithSubscription(ctx context.Context, id uuid.UUID, decidedBy int64, sub *models.Subscription) error
}
