package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/services"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/queue"
	"github.com/Abdurazzoq789/uz-tts/internal/metrics"
	"github.com/Abdurazzoq789/uz-tts/internal/workers/synthesizer/engines"
)

const (
	defaultRetryBackoff = 2 * time.Second

	// Stall sweep: a queued chunk whose predecessor finished is supposed
	// to have a message in flight. If it sits untouched this long, the
	// message was lost (enqueue failure, crash between completion and
	// hand-off) and the sweeper re-enqueues it.
	defaultStalledAfter = 5 * time.Minute
	stallSweepInterval  = time.Minute
)

type Queue interface {
	Enqueue(ctx context.Context, msg queue.SynthesisJobMessage) error
	Dequeue(ctx context.Context) (*queue.SynthesisJobMessage, error)
}

// Processor drains the synthesis queue with a fixed pool of workers.
// Each worker claims a job through a conditional status transition, so a
// message delivered twice is processed once.
type Processor struct {
	jobs         repositories.JobRepository
	users        repositories.UserRepository
	queue        Queue
	engine       engines.Engine
	cache        services.AudioCache
	ledger       *services.UsageLedger
	delivery     services.AudioDeliverer
	voice        models.VoiceParams
	workerCount  int
	maxRetries   int
	backoff      time.Duration
	stalledAfter time.Duration
	logger       *slog.Logger
	metrics      *metrics.BotMetrics
}

func NewProcessor(
	jobs repositories.JobRepository,
	users repositories.UserRepository,
	q Queue,
	engine engines.Engine,
	cache services.AudioCache,
	ledger *services.UsageLedger,
	delivery services.AudioDeliverer,
	voice models.VoiceParams,
	workerCount int,
	maxRetries int,
	logger *slog.Logger,
) *Processor {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Processor{
		jobs:         jobs,
		users:        users,
		queue:        q,
		engine:       engine,
		cache:        cache,
		ledger:       ledger,
		delivery:     delivery,
		voice:        voice,
		workerCount:  workerCount,
		maxRetries:   maxRetries,
		backoff:      defaultRetryBackoff,
		stalledAfter: defaultStalledAfter,
		logger:       logger,
		metrics:      metrics.GetMetrics(),
	}
}

// Run recovers jobs orphaned by a previous crash, then blocks until ctx
// is cancelled and every worker has drained. A background sweep catches
// chunks whose queue message was lost at runtime.
func (p *Processor) Run(ctx context.Context) {
	if err := p.recoverOrphans(ctx); err != nil {
		p.logger.Error("crash recovery failed", "error", err)
	}
	if err := p.requeueStalled(ctx); err != nil {
		p.logger.Error("stall recovery failed", "error", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.workerLoop(ctx, workerID)
		}(i + 1)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sweepLoop(ctx)
	}()

	<-ctx.Done()
	p.logger.Info("shutting down workers")
	wg.Wait()
	p.logger.Info("all workers stopped")
}

// recoverOrphans flips jobs stuck in running back to queued and puts
// them back on the queue, oldest first. A job that was mid-flight when
// the process died is synthesized again; the audio cache absorbs the
// duplicate work for chunks that already finished.
func (p *Processor) recoverOrphans(ctx context.Context) error {
	orphans, err := p.jobs.RecoverRunning(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover running jobs: %w", err)
	}
	for _, job := range orphans {
		msg := queue.SynthesisJobMessage{JobID: job.ID, RequestID: job.RequestID, UserID: job.UserID}
		if err := p.queue.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("failed to re-enqueue job %s: %w", job.ID, err)
		}
		p.logger.Info("recovered orphaned job", "job_id", job.ID, "request_id", job.RequestID, "chunk", job.ChunkIndex)
	}
	if len(orphans) > 0 {
		p.logger.Info("crash recovery complete", "jobs", len(orphans))
	}
	return nil
}

// sweepLoop periodically re-enqueues stalled chain heads so a lost
// message can delay a request but never strand it.
func (p *Processor) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(stallSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.requeueStalled(ctx); err != nil {
				p.logger.Error("stall sweep failed", "error", err)
			}
		}
	}
}

func (p *Processor) requeueStalled(ctx context.Context) error {
	stalled, err := p.jobs.RecoverStalled(ctx, time.Now().Add(-p.stalledAfter))
	if err != nil {
		return fmt.Errorf("failed to find stalled jobs: %w", err)
	}
	for _, job := range stalled {
		msg := queue.SynthesisJobMessage{JobID: job.ID, RequestID: job.RequestID, UserID: job.UserID}
		if err := p.queue.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("failed to re-enqueue stalled job %s: %w", job.ID, err)
		}
		p.logger.Warn("re-enqueued stalled job",
			"job_id", job.ID, "request_id", job.RequestID, "chunk", job.ChunkIndex)
	}
	return nil
}

func (p *Processor) workerLoop(ctx context.Context, workerID int) {
	p.logger.Info("worker started", "worker_id", workerID)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping", "worker_id", workerID)
			return
		default:
			msg, err := p.queue.Dequeue(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("queue error", "worker_id", workerID, "error", err)
				time.Sleep(500 * time.Millisecond)
				continue
			}
			if msg == nil {
				continue
			}
			p.processJob(ctx, msg)
		}
	}
}

func (p *Processor) processJob(ctx context.Context, msg *queue.SynthesisJobMessage) {
	job, err := p.jobs.GetByID(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			p.logger.Warn("dropped message for unknown job", "job_id", msg.JobID)
			return
		}
		p.logger.Error("failed to load job", "job_id", msg.JobID, "error", err)
		p.retryMessage(ctx, msg)
		return
	}
	if job.Status == models.JobSucceeded || job.Status == models.JobFailed {
		// Stale message, the job already reached a terminal state.
		return
	}

	// Requests from accounts blacklisted after admission are discarded
	// silently; the reserved unit goes back.
	user, err := p.users.GetUserByID(ctx, job.UserID)
	if err == nil && user.Blacklisted() {
		p.failRequest(ctx, job, "account blacklisted", false)
		return
	}

	if err := p.jobs.MarkRunning(ctx, job.ID); err != nil {
		if errors.Is(err, models.ErrStoreConflict) {
			// Another worker claimed it first.
			return
		}
		p.logger.Error("failed to claim job", "job_id", job.ID, "error", err)
		p.retryMessage(ctx, msg)
		return
	}
	job.Attempts++

	audio, err := p.cache.Get(ctx, job.Fingerprint)
	if err != nil {
		p.logger.Warn("cache probe failed", "job_id", job.ID, "error", err)
	}
	if audio == nil {
		audio, err = p.engine.Synthesize(ctx, job.Text, p.voice)
		if err != nil {
			p.handleEngineFailure(ctx, job, err)
			return
		}
		if err := p.cache.Set(ctx, job.Fingerprint, audio); err != nil {
			p.logger.Warn("failed to cache audio", "job_id", job.ID, "error", err)
		}
	} else {
		p.metrics.CacheHitsTotal.Inc()
	}

	if err := p.delivery.DeliverAudio(ctx, job.ChatID, audio); err != nil {
		// The audio is cached now, so a retry only repeats the send.
		p.logger.Error("delivery failed", "job_id", job.ID, "error", err)
		p.handleTransientFailure(ctx, job, fmt.Errorf("delivery failed: %w", err))
		return
	}

	if err := p.jobs.MarkSucceeded(ctx, job.ID); err != nil {
		p.logger.Error("failed to mark job succeeded", "job_id", job.ID, "error", err)
	}
	p.metrics.JobsTotal.WithLabelValues(string(models.JobSucceeded)).Inc()
	p.logger.Info("chunk delivered",
		"job_id", job.ID, "request_id", job.RequestID, "chunk", job.ChunkIndex+1, "of", job.ChunkCount)

	if job.LastChunk() {
		p.commitRequest(ctx, job)
		return
	}
	p.enqueueNext(ctx, job)
}

// enqueueNext schedules the successor chunk. Chaining one chunk at a
// time is what keeps delivery in chunk order without any coordinator.
func (p *Processor) enqueueNext(ctx context.Context, job *models.SynthesisJob) {
	siblings, err := p.jobs.GetByRequest(ctx, job.RequestID)
	if err != nil {
		p.logger.Error("failed to load request jobs", "request_id", job.RequestID, "error", err)
		return
	}
	for _, sibling := range siblings {
		if sibling.ChunkIndex == job.ChunkIndex+1 {
			msg := queue.SynthesisJobMessage{JobID: sibling.ID, RequestID: sibling.RequestID, UserID: sibling.UserID}
			err := p.queue.Enqueue(ctx, msg)
			if err == nil {
				return
			}
			p.logger.Error("failed to enqueue next chunk", "job_id", sibling.ID, "error", err)
			// One retry after a pause; past that the stall sweep picks
			// the chunk up, so the request is delayed rather than
			// dropped.
			select {
			case <-ctx.Done():
			case <-time.After(p.backoff):
				if err := p.queue.Enqueue(ctx, msg); err != nil {
					p.logger.Error("retry enqueue of next chunk failed, leaving to stall sweep",
						"job_id", sibling.ID, "error", err)
				}
			}
			return
		}
	}
}

// commitRequest finalizes usage accounting once the last chunk of a
// request is delivered. The quota unit was spent at admission; this
// records character volume across every chunk of the request, in the
// period the unit was reserved in.
func (p *Processor) commitRequest(ctx context.Context, job *models.SynthesisJob) {
	siblings, err := p.jobs.GetByRequest(ctx, job.RequestID)
	if err != nil {
		p.logger.Error("failed to load request jobs for commit", "request_id", job.RequestID, "error", err)
		return
	}
	var chars int64
	for _, sibling := range siblings {
		chars += int64(len(sibling.Text))
	}
	if err := p.ledger.Commit(ctx, job.UserID, job.Period, chars); err != nil {
		p.logger.Error("failed to commit usage", "request_id", job.RequestID, "error", err)
	}
	p.logger.Info("request complete", "request_id", job.RequestID, "chunks", job.ChunkCount, "chars", chars)
}

func (p *Processor) handleEngineFailure(ctx context.Context, job *models.SynthesisJob, err error) {
	if engines.IsTransient(err) {
		p.handleTransientFailure(ctx, job, err)
		return
	}
	p.logger.Error("permanent engine failure", "job_id", job.ID, "error", err)
	p.failRequest(ctx, job, err.Error(), true)
}

func (p *Processor) handleTransientFailure(ctx context.Context, job *models.SynthesisJob, err error) {
	if job.Attempts >= p.maxRetries {
		p.logger.Error("retries exhausted", "job_id", job.ID, "attempts", job.Attempts, "error", err)
		p.failRequest(ctx, job, fmt.Sprintf("retries exhausted: %v", err), true)
		return
	}

	if reqErr := p.jobs.Requeue(ctx, job.ID); reqErr != nil {
		p.logger.Error("failed to requeue job", "job_id", job.ID, "error", reqErr)
		return
	}
	p.logger.Warn("transient failure, retrying",
		"job_id", job.ID, "attempt", job.Attempts, "max", p.maxRetries, "error", err)

	msg := queue.SynthesisJobMessage{JobID: job.ID, RequestID: job.RequestID, UserID: job.UserID}
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff << (job.Attempts - 1)):
		if err := p.queue.Enqueue(ctx, msg); err != nil {
			p.logger.Error("failed to re-enqueue job", "job_id", job.ID, "error", err)
		}
	}
}

// failRequest fails the current chunk and every not-yet-delivered chunk
// behind it, releases the reserved quota unit, and tells the user unless
// the failure stems from a blacklist.
func (p *Processor) failRequest(ctx context.Context, job *models.SynthesisJob, reason string, notify bool) {
	if err := p.jobs.MarkFailed(ctx, job.ID, reason); err != nil {
		p.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}
	p.metrics.JobsTotal.WithLabelValues(string(models.JobFailed)).Inc()

	siblings, err := p.jobs.GetByRequest(ctx, job.RequestID)
	if err != nil {
		p.logger.Error("failed to load request jobs", "request_id", job.RequestID, "error", err)
	} else {
		for _, sibling := range siblings {
			if sibling.ChunkIndex > job.ChunkIndex && sibling.Status == models.JobQueued {
				if err := p.jobs.MarkFailed(ctx, sibling.ID, "previous chunk failed"); err != nil {
					p.logger.Error("failed to cascade failure", "job_id", sibling.ID, "error", err)
				}
			}
		}
	}

	// Failed requests do not count against the quota. The release targets
	// the admission period, which may differ from the current month.
	if err := p.ledger.Release(ctx, job.UserID, job.Period); err != nil {
		p.logger.Error("failed to release quota unit", "request_id", job.RequestID, "error", err)
	}

	if notify {
		if err := p.delivery.DeliverError(ctx, job.ChatID, "Audio yaratib bo'lmadi. Keyinroq qayta urinib ko'ring."); err != nil {
			p.logger.Error("failed to deliver error notice", "request_id", job.RequestID, "error", err)
		}
	}
}

// retryMessage puts a message back after an infrastructure error so the
// job is not lost. The conditional claim makes a duplicate harmless.
func (p *Processor) retryMessage(ctx context.Context, msg *queue.SynthesisJobMessage) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
		if err := p.queue.Enqueue(ctx, *msg); err != nil {
			p.logger.Error("failed to return message to queue", "job_id", msg.JobID, "error", err)
		}
	}
}
