package engines

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

// Engine renders one normalized text chunk into OGG/Opus audio bytes.
type Engine interface {
	Synthesize(ctx context.Context, text string, voice models.VoiceParams) ([]byte, error)
}

// EngineError classifies a synthesis failure. Transient failures
// (timeouts, overload, 5xx) are retried with backoff; everything else
// fails the job immediately.
type EngineError struct {
	Kind      string
	Transient bool
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	// Unclassified errors (network resets, context deadline) are treated
	// as transient so an engine blip does not burn user requests.
	return true
}
