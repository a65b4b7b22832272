package models

import "time"

type TariffScope string

const (
	ScopeDirectMessages TariffScope = "dm"
	ScopeAllChats       TariffScope = "all"
)

// UnlimitedQuota marks a tariff with no monthly cap. The ledger still
// counts usage for reporting but never denies on it.
const UnlimitedQuota = -1

const (
	TariffCodeFree    = "free"
	TariffCodeMonthly = "monthly"
	TariffCodeVIP     = "vip"
)

type Tariff struct {
	ID           int         `json:"id" db:"id"`
	Code         string      `json:"code" db:"code"`
	Scope        TariffScope `json:"scope" db:"scope"`
	MonthlyLimit int         `json:"monthly_limit" db:"monthly_limit"`
	PriceCents   int         `json:"price_cents" db:"price_cents"`
	Currency     string      `json:"currency" db:"currency"`
	IsVisible    bool        `json:"is_visible" db:"is_visible"`
	Description  *string     `json:"description" db:"description"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

func (t *Tariff) Unlimited() bool {
	return t.MonthlyLimit == UnlimitedQuota
}

// CoversChat reports whether the tariff grants quota in the given chat
// context. A DM-only tariff never admits channel or group requests.
func (t *Tariff) CoversChat(chatType ChatType) bool {
	if t.Scope == ScopeAllChats {
		return true
	}
	return chatType == ChatTypePrivate
}
