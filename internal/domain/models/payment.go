package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	// MethodTelegramStars payments are confirmed automatically by the
	// platform's successful_payment callback.
	MethodTelegramStars PaymentMethod = "telegram_stars"
	// MethodManualCard payments carry a receipt screenshot and stay
	// pending until an administrator confirms or rejects them.
	MethodManualCard PaymentMethod = "manual_card"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentRejected  PaymentStatus = "rejected"
)

type Payment struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	UserID           int64         `json:"user_id" db:"user_id"`
	TariffID         int           `json:"tariff_id" db:"tariff_id"`
	AmountCents      int           `json:"amount_cents" db:"amount_cents"`
	Currency         string        `json:"currency" db:"currency"`
	Method           PaymentMethod `json:"method" db:"method"`
	Status           PaymentStatus `json:"status" db:"status"`
	TelegramChargeID *string       `json:"telegram_charge_id" db:"telegram_charge_id"`
	ReceiptFileID    *string       `json:"receipt_file_id" db:"receipt_file_id"`
	DecidedBy        *int64        `json:"decided_by" db:"decided_by"`
	Notes            *string       `json:"notes" db:"notes"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

func (p *Payment) Terminal() bool {
	return p.Status == PaymentConfirmed || p.Status == PaymentRejected
}
