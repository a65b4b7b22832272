package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// VoiceParams are part of the cache key: the same text rendered with a
// different voice or rate is different audio.
type VoiceParams struct {
	Voice        string  `json:"voice"`
	SpeakingRate float64 `json:"speaking_rate"`
}

// SynthesisJob is one chunk of one synthesis request. Chunks of the same
// request share RequestID and are ordered by ChunkIndex. Period pins the
// ledger month the admission unit was reserved in, so a failure after a
// month rollover releases the unit where it was spent.
type SynthesisJob struct {
	ID            uuid.UUID `json:"id" db:"id"`
	RequestID     uuid.UUID `json:"request_id" db:"request_id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	Period        string    `json:"period" db:"period"`
	ChatID        int64     `json:"chat_id" db:"chat_id"`
	ChatType      ChatType  `json:"chat_type" db:"chat_type"`
	ChunkIndex    int       `json:"chunk_index" db:"chunk_index"`
	ChunkCount    int       `json:"chunk_count" db:"chunk_count"`
	Text          string    `json:"text" db:"text"`
	Fingerprint   string    `json:"fingerprint" db:"fingerprint"`
	Status        JobStatus `json:"status" db:"status"`
	Attempts      int       `json:"attempts" db:"attempts"`
	FailureReason *string   `json:"failure_reason" db:"failure_reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

func (j *SynthesisJob) LastChunk() bool {
	return j.ChunkIndex == j.ChunkCount-1
}

// Fingerprint is the stable cache key for one normalized chunk rendered
// with the given voice parameters. Normalization is deterministic, so the
// same input text always maps to the same fingerprint.
func Fingerprint(normalizedText string, voice VoiceParams) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f", normalizedText, voice.Voice, voice.SpeakingRate)))
	return hex.EncodeToString(h[:])
}
