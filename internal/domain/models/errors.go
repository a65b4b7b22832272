package models

import "errors"

var (
	// ErrInvalidInput: normalization rejected the text. Not retried.
	ErrInvalidInput = errors.New("text has no synthesizable content")

	// ErrQuotaExceeded: admission denied, no job was created.
	ErrQuotaExceeded = errors.New("monthly quota exceeded")

	// ErrBlacklisted: the account may not use the bot at all.
	ErrBlacklisted = errors.New("user is blacklisted")

	// ErrScopeNotCovered: the effective tariff does not grant quota in
	// this chat context (e.g. a DM-only tariff in a channel).
	ErrScopeNotCovered = errors.New("tariff does not cover this chat type")

	// ErrStoreConflict: an atomic conditional update lost a race and a
	// single re-read did not resolve the decision.
	ErrStoreConflict = errors.New("concurrent update conflict")

	// ErrPaymentFinalized: the payment already reached a terminal state;
	// confirming or rejecting again is a no-op.
	ErrPaymentFinalized = errors.New("payment already finalized")

	ErrNotFound = errors.New("record not found")
)
