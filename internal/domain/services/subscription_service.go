package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
)

// BillingPeriod is how long one confirmed payment keeps a subscription
// active.
const BillingPeriod = 30 * 24 * time.Hour

type SubscriptionService struct {
	subRepo     repositories.SubscriptionRepository
	tariffRepo  repositories.TariffRepository
	paymentRepo repositories.PaymentRepository
	userRepo    repositories.UserRepository
	logger      *slog.Logger
}

func NewSubscriptionService(
	subRepo repositories.SubscriptionRepository,
	tariffRepo repositories.TariffRepository,
	paymentRepo repositories.PaymentRepository,
	userRepo repositories.UserRepository,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:     subRepo,
		tariffRepo:  tariffRepo,
		paymentRepo: paymentRepo,
		userRepo:    userRepo,
		logger:      logger,
	}
}

// EffectiveTariff resolves which tariff governs the user right now.
// Administrators get the VIP tariff without any purchase; otherwise the
// most recent subscription whose window contains asOf wins; with no
// active subscription the implicit free tariff applies. Expired
// subscriptions are skipped here rather than flagged anywhere.
func (s *SubscriptionService) EffectiveTariff(ctx context.Context, userID int64, asOf time.Time) (*models.Tariff, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if user != nil && user.IsAdmin {
		return s.tariffRepo.GetByCode(ctx, models.TariffCodeVIP)
	}

	sub, err := s.subRepo.GetEffective(ctx, userID, asOf)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.tariffRepo.GetByCode(ctx, models.TariffCodeFree)
		}
		return nil, fmt.Errorf("failed to resolve subscription: %w", err)
	}

	return s.tariffRepo.GetByID(ctx, sub.TariffID)
}

// CreatePayment records a purchase attempt. Telegram Stars payments
// arrive already charged by the platform and are confirmed in the same
// call; manual card payments stay pending for an administrator.
func (s *SubscriptionService) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return err
	}
	s.logger.Info("payment created",
		"payment_id", payment.ID, "user_id", payment.UserID, "method", payment.Method)
	return nil
}

// ConfirmPayment transitions a pending payment to confirmed and creates
// exactly one subscription, atomically. The payment row transition is
// conditional on the pending state, so a concurrent or repeated
// confirmation returns models.ErrPaymentFinalized and never yields a
// second subscription; the transaction guarantees a confirmed payment
// always has its subscription.
func (s *SubscriptionService) ConfirmPayment(ctx context.Context, paymentID uuid.UUID, decidedBy int64) (*models.Subscription, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &models.Subscription{
		UserID:   payment.UserID,
		TariffID: payment.TariffID,
		StartsAt: now,
		EndsAt:   now.Add(BillingPeriod),
	}
	if err := s.paymentRepo.FinalizeWithSubscription(ctx, paymentID, decidedBy, sub); err != nil {
		return nil, err
	}

	s.logger.Info("payment confirmed",
		"payment_id", paymentID, "subscription_id", sub.ID, "user_id", payment.UserID, "decided_by", decidedBy)
	return sub, nil
}

// RejectPayment marks a pending payment rejected, terminally.
func (s *SubscriptionService) RejectPayment(ctx context.Context, paymentID uuid.UUID, decidedBy int64, reason string) error {
	if err := s.paymentRepo.Finalize(ctx, paymentID, models.PaymentRejected, decidedBy, &reason); err != nil {
		return err
	}
	s.logger.Info("payment rejected", "payment_id", paymentID, "decided_by", decidedBy, "reason", reason)
	return nil
}

// GrantSubscription is the admin path around payments entirely: it
// attaches a tariff to a user for one billing period.
func (s *SubscriptionService) GrantSubscription(ctx context.Context, userID int64, tariffCode string) (*models.Subscription, error) {
	tariff, err := s.tariffRepo.GetByCode(ctx, tariffCode)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &models.Subscription{
		UserID:   userID,
		TariffID: tariff.ID,
		StartsAt: now,
		EndsAt:   now.Add(BillingPeriod),
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscription granted", "user_id", userID, "tariff", tariffCode)
	return sub, nil
}

func (s *SubscriptionService) ListPendingPayments(ctx context.Context) ([]*models.Payment, error) {
	return s.paymentRepo.ListPending(ctx, models.MethodManualCard)
}

func (s *SubscriptionService) ListTariffs(ctx context.Context) ([]*models.Tariff, error) {
	return s.tariffRepo.ListVisible(ctx)
}

func (s *SubscriptionService) TariffByCode(ctx context.Context, code string) (*models.Tariff, error) {
	return s.tariffRepo.GetByCode(ctx, code)
}

func (s *SubscriptionService) PaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

// SubscriptionInfo describes the user's current plan for display.
type SubscriptionInfo struct {
	Tariff    *models.Tariff
	ExpiresAt *time.Time
}

func (s *SubscriptionService) CurrentPlan(ctx context.Context, userID int64) (*SubscriptionInfo, error) {
	tariff, err := s.EffectiveTariff(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}

	info := &SubscriptionInfo{Tariff: tariff}
	if tariff.Code != models.TariffCodeFree && tariff.Code != models.TariffCodeVIP {
		if sub, err := s.subRepo.GetEffective(ctx, userID, time.Now()); err == nil {
			info.ExpiresAt = &sub.EndsAt
		}
	}
	return info, nil
}
