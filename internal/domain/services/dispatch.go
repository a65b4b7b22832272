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
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/queue"
	"github.com/Abdurazzoq789/uz-tts/internal/metrics"
	"github.com/Abdurazzoq789/uz-tts/internal/normalizer"
)

// Enqueuer pushes admitted jobs onto the shared worker queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.SynthesisJobMessage) error
}

// AudioCache is the fingerprint-addressed audio store consulted before
// any engine work is scheduled.
type AudioCache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	Set(ctx context.Context, fingerprint string, audio []byte) error
}

// AudioDeliverer hands finished audio (or a failure) back to the
// requester through the transport layer.
type AudioDeliverer interface {
	DeliverAudio(ctx context.Context, chatID int64, audio []byte) error
	DeliverError(ctx context.Context, chatID int64, message string) error
}

// QuotaExceededError carries the denial context shown to the user: when
// the counter resets and which tariff produced the limit.
type QuotaExceededError struct {
	ResetAt    time.Time
	TariffCode string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded on tariff %q, resets %s", e.TariffCode, e.ResetAt.Format(time.RFC3339))
}

func (e *QuotaExceededError) Unwrap() error { return models.ErrQuotaExceeded }

type SynthesisRequest struct {
	UserID   int64
	ChatID   int64
	ChatType models.ChatType
	RawText  string
}

type SubmitResult struct {
	RequestID  uuid.UUID
	ChunkCount int
	// Queued is false when every chunk was served from cache and the
	// audio has already been delivered.
	Queued bool
}

// Dispatcher is the admission gate and job factory: it decides whether a
// request may proceed, spends the quota unit, and either answers from
// cache or schedules asynchronous synthesis.
type Dispatcher struct {
	users    repositories.UserRepository
	jobs     repositories.JobRepository
	subs     *SubscriptionService
	ledger   *UsageLedger
	cache    AudioCache
	queue    Enqueuer
	delivery AudioDeliverer
	voice    models.VoiceParams
	normOpts normalizer.Options
	logger   *slog.Logger
	metrics  *metrics.BotMetrics
}

func NewDispatcher(
	users repositories.UserRepository,
	jobs repositories.JobRepository,
	subs *SubscriptionService,
	ledger *UsageLedger,
	cache AudioCache,
	enqueuer Enqueuer,
	delivery AudioDeliverer,
	voice models.VoiceParams,
	normOpts normalizer.Options,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		users:    users,
		jobs:     jobs,
		subs:     subs,
		ledger:   ledger,
		cache:    cache,
		queue:    enqueuer,
		delivery: delivery,
		voice:    voice,
		normOpts: normOpts,
		logger:   logger,
		metrics:  metrics.GetMetrics(),
	}
}

// Submit runs the full admission pipeline. The only synchronous work on
// this path is the quota reservation, normalization and a cache probe;
// engine invocations always happen on the worker pool.
//
// Quota is charged once per logical request regardless of how many
// chunks the text normalizes into.
func (d *Dispatcher) Submit(ctx context.Context, req SynthesisRequest) (*SubmitResult, error) {
	now := time.Now()

	user, err := d.users.GetUserByID(ctx, req.UserID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user != nil && user.Blacklisted() {
		d.metrics.RequestsTotal.WithLabelValues("blacklisted").Inc()
		return nil, models.ErrBlacklisted
	}

	tariff, err := d.subs.EffectiveTariff(ctx, req.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tariff: %w", err)
	}
	if !tariff.CoversChat(req.ChatType) {
		d.metrics.RequestsTotal.WithLabelValues("scope_denied").Inc()
		return nil, models.ErrScopeNotCovered
	}

	if err := d.ledger.CheckAndReserve(ctx, req.UserID, now, tariff.MonthlyLimit); err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			d.metrics.RequestsTotal.WithLabelValues("quota_denied").Inc()
			d.metrics.QuotaDenials.Inc()
			return nil, &QuotaExceededError{ResetAt: models.PeriodResetAt(now), TariffCode: tariff.Code}
		}
		return nil, err
	}

	period := models.PeriodKey(now)

	result, err := d.normalizer(req)
	if err != nil {
		// The unit was reserved before normalization; give it back so an
		// invalid message costs nothing.
		d.releaseUnit(ctx, req.UserID, period)
		d.metrics.RequestsTotal.WithLabelValues("invalid_input").Inc()
		return nil, err
	}

	requestID := uuid.New()
	chunks := result.Chunks

	// Deliver the cached prefix right away; chunks past the first miss
	// go through the worker pool so ordering is preserved.
	firstMiss := 0
	for _, chunk := range chunks {
		audio, err := d.cache.Get(ctx, models.Fingerprint(chunk, d.voice))
		if err != nil || audio == nil {
			break
		}
		if err := d.delivery.DeliverAudio(ctx, req.ChatID, audio); err != nil {
			d.releaseUnit(ctx, req.UserID, period)
			return nil, fmt.Errorf("failed to deliver cached audio: %w", err)
		}
		d.metrics.CacheHitsTotal.Inc()
		firstMiss++
	}

	if firstMiss == len(chunks) {
		// Every chunk was cached: the request is complete and still
		// costs its one quota unit, since quota meters usage, not
		// engine invocations.
		if err := d.ledger.Commit(ctx, req.UserID, period, int64(len(result.Text))); err != nil {
			d.logger.Error("failed to commit usage after cache hit", "user_id", req.UserID, "error", err)
		}
		d.metrics.RequestsTotal.WithLabelValues("cache_hit").Inc()
		return &SubmitResult{RequestID: requestID, ChunkCount: len(chunks), Queued: false}, nil
	}

	jobs := make([]*models.SynthesisJob, 0, len(chunks)-firstMiss)
	for i := firstMiss; i < len(chunks); i++ {
		jobs = append(jobs, &models.SynthesisJob{
			ID:          uuid.New(),
			RequestID:   requestID,
			UserID:      req.UserID,
			Period:      period,
			ChatID:      req.ChatID,
			ChatType:    req.ChatType,
			ChunkIndex:  i,
			ChunkCount:  len(chunks),
			Text:        chunks[i],
			Fingerprint: models.Fingerprint(chunks[i], d.voice),
			Status:      models.JobQueued,
		})
	}
	if err := d.jobs.CreateBatch(ctx, jobs); err != nil {
		d.releaseUnit(ctx, req.UserID, period)
		return nil, fmt.Errorf("failed to persist jobs: %w", err)
	}

	// Only the first pending chunk enters the queue; each completed
	// chunk enqueues its successor, which keeps delivery in chunk order.
	first := jobs[0]
	if err := d.queue.Enqueue(ctx, queue.SynthesisJobMessage{
		JobID:     first.ID,
		RequestID: requestID,
		UserID:    req.UserID,
	}); err != nil {
		// The rows just written must not outlive the refund: a released
		// request left queued would be picked up by the stall sweeper
		// and synthesized for free.
		for _, job := range jobs {
			if failErr := d.jobs.MarkFailed(ctx, job.ID, "failed to enqueue"); failErr != nil {
				d.logger.Error("failed to fail unenqueued job", "job_id", job.ID, "error", failErr)
			}
		}
		d.releaseUnit(ctx, req.UserID, period)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	d.metrics.RequestsTotal.WithLabelValues("admitted").Inc()
	d.logger.Info("request admitted",
		"request_id", requestID, "user_id", req.UserID, "chunks", len(chunks), "cached_prefix", firstMiss)

	return &SubmitResult{RequestID: requestID, ChunkCount: len(chunks), Queued: true}, nil
}

// releaseUnit refunds the admission reservation so every error path out
// of Submit leaves the ledger net-zero.
func (d *Dispatcher) releaseUnit(ctx context.Context, userID int64, period string) {
	if err := d.ledger.Release(ctx, userID, period); err != nil {
		d.logger.Error("failed to release reserved unit", "user_id", userID, "period", period, "error", err)
	}
}

func (d *Dispatcher) normalizer(req SynthesisRequest) (*normalizer.Result, error) {
	opts := d.normOpts
	if req.ChatType == models.ChatTypePrivate {
		// Private chats synthesize the whole message; the trigger
		// hashtag only applies to channel and group posts.
		opts.TriggerHashtag = ""
	}
	return normalizer.Normalize(req.RawText, opts)
}

// Remaining exposes the user's quota position for /myplan style display.
func (d *Dispatcher) Remaining(ctx context.Context, userID int64) (int, *models.Tariff, error) {
	now := time.Now()
	tariff, err := d.subs.EffectiveTariff(ctx, userID, now)
	if err != nil {
		return 0, nil, err
	}
	remaining, err := d.ledger.Remaining(ctx, userID, now, tariff.MonthlyLimit)
	if err != nil {
		return 0, nil, err
	}
	return remaining, tariff, nil
}
