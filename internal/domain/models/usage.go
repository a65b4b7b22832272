package models

import "time"

// UsagePeriod is the per-user counter for one calendar month. Rows are
// created lazily on first use; prior months are kept for reporting only.
type UsagePeriod struct {
	UserID     int64     `json:"user_id" db:"user_id"`
	Period     string    `json:"period" db:"period"`
	TTSCount   int       `json:"tts_count" db:"tts_count"`
	CharsCount int64     `json:"chars_count" db:"chars_count"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// PeriodKey formats the ledger period for a point in time, e.g. "2026-08".
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodResetAt returns the first instant of the next period, i.e. when
// the counter stops being read for quota decisions.
func PeriodResetAt(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
