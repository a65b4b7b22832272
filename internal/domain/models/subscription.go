package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription links a user to a tariff for a validity window
// [StartsAt, EndsAt). Expiry is evaluated lazily: a subscription past
// EndsAt is never selected as effective, no sweeper marks it.
type Subscription struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	TariffID  int       `json:"tariff_id" db:"tariff_id"`
	StartsAt  time.Time `json:"starts_at" db:"starts_at"`
	EndsAt    time.Time `json:"ends_at" db:"ends_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (s *Subscription) ActiveAt(t time.Time) bool {
	return !t.Before(s.StartsAt) && t.Before(s.EndsAt)
}
