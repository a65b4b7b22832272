package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/metrics"
)

// MMSEngine calls an MMS-TTS inference server over HTTP. The server
// hosts the Cyrillic-script Uzbek VITS model and returns OGG/Opus audio.
type MMSEngine struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.BotMetrics
}

type synthesizeRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	SpeakingRate float64 `json:"speaking_rate"`
	Format       string  `json:"format"`
}

func NewMMSEngine(baseURL string, timeout time.Duration) *MMSEngine {
	return &MMSEngine{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics.GetMetrics(),
	}
}

func (e *MMSEngine) Synthesize(ctx context.Context, text string, voice models.VoiceParams) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{
		Text:         text,
		Voice:        voice.Voice,
		SpeakingRate: voice.SpeakingRate,
		Format:       "ogg_opus",
	})
	if err != nil {
		return nil, &EngineError{Kind: "encode", Transient: false, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/tts", bytes.NewReader(body))
	if err != nil {
		return nil, &EngineError{Kind: "request", Transient: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.metrics.EngineFailures.WithLabelValues("network").Inc()
		return nil, &EngineError{Kind: "network", Transient: true, Err: err}
	}
	defer resp.Body.Close()
	e.metrics.EngineDuration.Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		e.metrics.EngineFailures.WithLabelValues("overload").Inc()
		return nil, &EngineError{
			Kind:      "overload",
			Transient: true,
			Err:       fmt.Errorf("engine returned status %d", resp.StatusCode),
		}
	default:
		// Other 4xx means this text will never synthesize; retrying is
		// pointless.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e.metrics.EngineFailures.WithLabelValues("rejected").Inc()
		return nil, &EngineError{
			Kind:      "rejected",
			Transient: false,
			Err:       fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(detail)),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		e.metrics.EngineFailures.WithLabelValues("network").Inc()
		return nil, &EngineError{Kind: "network", Transient: true, Err: err}
	}
	if len(audio) == 0 {
		e.metrics.EngineFailures.WithLabelValues("empty").Inc()
		return nil, &EngineError{Kind: "empty", Transient: true, Err: fmt.Errorf("engine returned empty audio")}
	}

	return audio, nil
}
