package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/services"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/queue"
	"github.com/Abdurazzoq789/uz-tts/internal/workers/synthesizer/engines"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.SynthesisJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*models.SynthesisJob)}
}

func (r *memJobRepo) CreateBatch(_ context.Context, jobs []*models.SynthesisJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, job := range jobs {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		job.CreatedAt = now
		job.UpdatedAt = now
		copied := *job
		r.jobs[job.ID] = &copied
	}
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.SynthesisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *memJobRepo) GetByRequest(_ context.Context, requestID uuid.UUID) ([]*models.SynthesisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*models.SynthesisJob
	for _, job := range r.jobs {
		if job.RequestID == requestID {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	for i := 0; i < len(jobs); i++ {
		for j := i + 1; j < len(jobs); j++ {
			if jobs[j].ChunkIndex < jobs[i].ChunkIndex {
				jobs[i], jobs[j] = jobs[j], jobs[i]
			}
		}
	}
	return jobs, nil
}

func (r *memJobRepo) MarkRunning(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != models.JobQueued {
		return models.ErrStoreConflict
	}
	job.Status = models.JobRunning
	job.Attempts++
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	return r.setStatus(id, models.JobSucceeded, nil)
}

func (r *memJobRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return r.setStatus(id, models.JobFailed, &reason)
}

func (r *memJobRepo) Requeue(_ context.Context, id uuid.UUID) error {
	return r.setStatus(id, models.JobQueued, nil)
}

func (r *memJobRepo) setStatus(id uuid.UUID, status models.JobStatus, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	job.Status = status
	if reason != nil {
		job.FailureReason = reason
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) RecoverRunning(_ context.Context) ([]*models.SynthesisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recovered []*models.SynthesisJob
	for _, job := range r.jobs {
		if job.Status == models.JobRunning {
			job.Status = models.JobQueued
			copied := *job
			recovered = append(recovered, &copied)
		}
	}
	return recovered, nil
}

func (r *memJobRepo) RecoverStalled(_ context.Context, olderThan time.Time) ([]*models.SynthesisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stalled []*models.SynthesisJob
	for _, job := range r.jobs {
		if job.Status != models.JobQueued || !job.UpdatedAt.Before(olderThan) {
			continue
		}
		blocked := false
		for _, sibling := range r.jobs {
			if sibling.RequestID == job.RequestID && sibling.ChunkIndex < job.ChunkIndex &&
				(sibling.Status == models.JobQueued || sibling.Status == models.JobRunning) {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		job.UpdatedAt = time.Now()
		copied := *job
		stalled = append(stalled, &copied)
	}
	return stalled, nil
}

func (r *memJobRepo) setUpdatedAt(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.UpdatedAt = at
	}
}

func (r *memJobRepo) CountByStatus(_ context.Context) (map[models.JobStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.JobStatus]int64)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*models.User)}
}

func (r *memUserRepo) UpsertUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *memUserRepo) UpdateStatus(_ context.Context, id int64, status models.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		user.Status = status
		return nil
	}
	return models.ErrNotFound
}

func (r *memUserRepo) SetAdmin(_ context.Context, id int64, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		user.IsAdmin = isAdmin
		return nil
	}
	return models.ErrNotFound
}

func (r *memUserRepo) CountUsers(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

type memUsageRepo struct {
	mu   sync.Mutex
	rows map[string]*models.UsagePeriod
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{rows: make(map[string]*models.UsagePeriod)}
}

func usageKey(userID int64, period string) string {
	return fmt.Sprintf("%d|%s", userID, period)
}

func (r *memUsageRepo) ReserveUnit(_ context.Context, userID int64, period string, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[usageKey(userID, period)]
	if !ok {
		r.rows[usageKey(userID, period)] = &models.UsagePeriod{UserID: userID, Period: period, TTSCount: 1}
		return true, nil
	}
	if limit == models.UnlimitedQuota || row.TTSCount < limit {
		row.TTSCount++
		return true, nil
	}
	return false, nil
}

func (r *memUsageRepo) ReleaseUnit(_ context.Context, userID int64, period string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[usageKey(userID, period)]; ok && row.TTSCount > 0 {
		row.TTSCount--
	}
	return nil
}

func (r *memUsageRepo) CommitChars(_ context.Context, userID int64, period string, chars int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[usageKey(userID, period)]; ok {
		row.CharsCount += chars
	}
	return nil
}

func (r *memUsageRepo) GetPeriod(_ context.Context, userID int64, period string) (*models.UsagePeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[usageKey(userID, period)]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

type memQueue struct {
	mu       sync.Mutex
	messages []queue.SynthesisJobMessage
}

func (q *memQueue) Enqueue(_ context.Context, msg queue.SynthesisJobMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *memQueue) Dequeue(_ context.Context) (*queue.SynthesisJobMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return &msg, nil
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, fingerprint string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[fingerprint], nil
}

func (c *memCache) Set(_ context.Context, fingerprint string, audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = audio
	return nil
}

type scriptedEngine struct {
	mu       sync.Mutex
	failures []error
	calls    int
}

func (e *scriptedEngine) Synthesize(_ context.Context, text string, _ models.VoiceParams) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if len(e.failures) > 0 {
		err := e.failures[0]
		e.failures = e.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	return []byte("audio:" + text), nil
}

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type recordingDeliverer struct {
	mu     sync.Mutex
	audio  []int64
	errors []int64
}

func (d *recordingDeliverer) DeliverAudio(_ context.Context, chatID int64, _ []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audio = append(d.audio, chatID)
	return nil
}

func (d *recordingDeliverer) DeliverError(_ context.Context, chatID int64, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, chatID)
	return nil
}

type fixture struct {
	processor *Processor
	jobs      *memJobRepo
	users     *memUserRepo
	usage     *memUsageRepo
	queue     *memQueue
	engine    *scriptedEngine
	cache     *memCache
	delivery  *recordingDeliverer
	voice     models.VoiceParams
}

func newFixture(maxRetries int) *fixture {
	jobs := newMemJobRepo()
	users := newMemUserRepo()
	usage := newMemUsageRepo()
	q := &memQueue{}
	engine := &scriptedEngine{}
	cacheStore := newMemCache()
	delivery := &recordingDeliverer{}
	logger := testLogger()
	voice := models.VoiceParams{Voice: "uzb-script_cyrillic", SpeakingRate: 1.0}

	processor := NewProcessor(jobs, users, q, engine, cacheStore,
		services.NewUsageLedger(usage, logger), delivery, voice, 1, maxRetries, logger)
	processor.backoff = time.Millisecond

	return &fixture{
		processor: processor,
		jobs:      jobs,
		users:     users,
		usage:     usage,
		queue:     q,
		engine:    engine,
		cache:     cacheStore,
		delivery:  delivery,
		voice:     voice,
	}
}

func (f *fixture) seedRequest(t *testing.T, chunks ...string) []*models.SynthesisJob {
	t.Helper()
	requestID := uuid.New()
	jobs := make([]*models.SynthesisJob, 0, len(chunks))
	for i, text := range chunks {
		jobs = append(jobs, &models.SynthesisJob{
			ID:          uuid.New(),
			RequestID:   requestID,
			UserID:      1,
			ChatID:      10,
			ChatType:    models.ChatTypePrivate,
			ChunkIndex:  i,
			ChunkCount:  len(chunks),
			Text:        text,
			Fingerprint: models.Fingerprint(text, f.voice),
			Status:      models.JobQueued,
			Period:      models.PeriodKey(time.Now()),
		})
	}
	require.NoError(t, f.jobs.CreateBatch(context.Background(), jobs))

	// The dispatcher reserves one unit before jobs exist.
	_, err := f.usage.ReserveUnit(context.Background(), 1, models.PeriodKey(time.Now()), models.UnlimitedQuota)
	require.NoError(t, err)
	return jobs
}

func msgFor(job *models.SynthesisJob) *queue.SynthesisJobMessage {
	return &queue.SynthesisJobMessage{JobID: job.ID, RequestID: job.RequestID, UserID: job.UserID}
}

func TestProcessJobSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "салом дунё")

	f.processor.processJob(context.Background(), msgFor(jobs[0]))

	stored, err := f.jobs.GetByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, stored.Status)
	assert.Equal(t, []int64{10}, f.delivery.audio)

	cached, err := f.cache.Get(context.Background(), jobs[0].Fingerprint)
	require.NoError(t, err)
	assert.NotNil(t, cached)

	usage, err := f.usage.GetPeriod(context.Background(), 1, models.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(len("салом дунё")), usage.CharsCount)
}

func TestProcessJobChainsChunksInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "биринчи бўлак", "иккинчи бўлак")

	f.processor.processJob(context.Background(), msgFor(jobs[0]))

	// Finishing chunk 0 enqueues chunk 1; usage is not committed yet.
	require.Equal(t, 1, f.queue.len())
	usage, err := f.usage.GetPeriod(context.Background(), 1, models.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Zero(t, usage.CharsCount)

	next, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, jobs[1].ID, next.JobID)

	f.processor.processJob(context.Background(), next)

	assert.Equal(t, []int64{10, 10}, f.delivery.audio)
	usage, err = f.usage.GetPeriod(context.Background(), 1, models.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(len(jobs[0].Text)+len(jobs[1].Text)), usage.CharsCount)
}

func TestProcessJobCacheHitSkipsEngine(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "салом дунё")
	require.NoError(t, f.cache.Set(context.Background(), jobs[0].Fingerprint, []byte("cached")))

	f.processor.processJob(context.Background(), msgFor(jobs[0]))

	assert.Zero(t, f.engine.callCount())
	assert.Equal(t, []int64{10}, f.delivery.audio)

	stored, err := f.jobs.GetByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, stored.Status)
}

func TestProcessJobTransientFailureRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "салом дунё")
	f.engine.failures = []error{&engines.EngineError{Kind: "overload", Transient: true, Err: errors.New("503")}}

	f.processor.processJob(context.Background(), msgFor(jobs[0]))

	stored, err := f.jobs.GetByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, stored.Status)
	require.Equal(t, 1, f.queue.len())

	// The retry succeeds.
	next, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	f.processor.processJob(context.Background(), next)

	stored, err = f.jobs.GetByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
}

func TestProcessJobRetriesExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(1)
	jobs := f.seedRequest(t, "биринчи бўлак", "иккинчи бўлак")
	f.engine.failures = []error{&engines.EngineError{Kind: "overload", Transient: true, Err: errors.New("503")}}

	f.processor.processJob(context.Background(), msgFor(jobs[0]))

	stored, err := f.jobs.GetByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, stored.Status)

	// The rest of the request fails with it.
	sibling, err := f.jobs.GetByID(context.Background(), jobs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, sibling.Status)

	// Net-zero quota effect and a user-facing notice.
	usage, err := f.usage.GetPeriod(context.Background(), 1, models.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Zero(t, usage.TTSCount)
	assert.Equal(t, []int64{10}, f.delivery.errors)
	assert.Empty(t, f.delivery.audio)
}

func TestProcessJobFatalFailureDoesNotRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "салом дунё")
	f.engine.failures = []error{&engines.EngineError{Kind: "rejected", Transient: false, Err: errors.New("400")}}

	f.processor.processJob(context.Background(), msgFor(jobs[0]))

	stored, err := f.jobs.GetByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, stored.Status)
	assert.Equal(t, 1, f.engine.callCount())
	assert.Zero(t, f.queue.len())
}

func TestProcessJobStaleMessageIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "салом дунё")
	require.NoError(t, f.jobs.MarkRunning(context.Background(), jobs[0].ID))
	require.NoError(t, f.jobs.MarkSucceeded(context.Background(), jobs[0].ID))

	f.processor.processJob(context.Background(), msgFor(jobs[0]))

	assert.Zero(t, f.engine.callCount())
	assert.Empty(t, f.delivery.audio)
}

func TestProcessJobBlacklistedUserDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "салом дунё")
	require.NoError(t, f.users.UpsertUser(context.Background(), &models.User{
		ID:     1,
		Status: models.UserStatusBlacklisted,
	}))

	f.processor.processJob(context.Background(), msgFor(jobs[0]))

	stored, err := f.jobs.GetByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, stored.Status)
	assert.Zero(t, f.engine.callCount())
	assert.Empty(t, f.delivery.audio)
	assert.Empty(t, f.delivery.errors)
}

func TestStallSweepRequeuesStrandedChunk(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "биринчи бўлак", "иккинчи бўлак")

	// Chunk 0 was delivered but its hand-off message for chunk 1 never
	// made it onto the queue.
	require.NoError(t, f.jobs.MarkRunning(context.Background(), jobs[0].ID))
	require.NoError(t, f.jobs.MarkSucceeded(context.Background(), jobs[0].ID))
	f.jobs.setUpdatedAt(jobs[1].ID, time.Now().Add(-time.Hour))

	require.NoError(t, f.processor.requeueStalled(context.Background()))
	require.Equal(t, 1, f.queue.len())

	msg, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobs[1].ID, msg.JobID)

	// The sweep bumps the row, so an immediate second pass stays quiet.
	require.NoError(t, f.processor.requeueStalled(context.Background()))
	assert.Zero(t, f.queue.len())

	// The resurrected message finishes the request.
	f.processor.processJob(context.Background(), msg)
	stored, err := f.jobs.GetByID(context.Background(), jobs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, stored.Status)
	assert.Equal(t, []int64{10}, f.delivery.audio)
}

func TestStallSweepPicksOnlyChainHeads(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "биринчи бўлак", "иккинчи бўлак")

	// Both chunks sit queued past the threshold. Only chunk 0 is
	// stranded; chunk 1 is just waiting its turn behind it.
	old := time.Now().Add(-time.Hour)
	f.jobs.setUpdatedAt(jobs[0].ID, old)
	f.jobs.setUpdatedAt(jobs[1].ID, old)

	require.NoError(t, f.processor.requeueStalled(context.Background()))
	require.Equal(t, 1, f.queue.len())

	msg, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobs[0].ID, msg.JobID)
}

func TestFailureReleasesInAdmissionPeriod(t *testing.T) {
	t.Parallel()

	f := newFixture(3)

	// Admitted minutes before a month rollover, failing after it.
	admitted := time.Date(2026, time.January, 31, 23, 50, 0, 0, time.UTC)
	period := models.PeriodKey(admitted)
	job := &models.SynthesisJob{
		ID:          uuid.New(),
		RequestID:   uuid.New(),
		UserID:      1,
		ChatID:      10,
		ChatType:    models.ChatTypePrivate,
		ChunkIndex:  0,
		ChunkCount:  1,
		Text:        "салом дунё",
		Fingerprint: models.Fingerprint("салом дунё", f.voice),
		Status:      models.JobQueued,
		Period:      period,
	}
	require.NoError(t, f.jobs.CreateBatch(context.Background(), []*models.SynthesisJob{job}))
	_, err := f.usage.ReserveUnit(context.Background(), 1, period, models.UnlimitedQuota)
	require.NoError(t, err)

	f.engine.failures = []error{&engines.EngineError{Kind: "rejected", Transient: false, Err: errors.New("400")}}
	f.processor.processJob(context.Background(), msgFor(job))

	// The unit goes back to the month it was spent in, not the current one.
	usage, err := f.usage.GetPeriod(context.Background(), 1, period)
	require.NoError(t, err)
	assert.Zero(t, usage.TTSCount)
	_, err = f.usage.GetPeriod(context.Background(), 1, models.PeriodKey(time.Now()))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecoverOrphans(t *testing.T) {
	t.Parallel()

	f := newFixture(3)
	jobs := f.seedRequest(t, "салом дунё")
	require.NoError(t, f.jobs.MarkRunning(context.Background(), jobs[0].ID))

	require.NoError(t, f.processor.recoverOrphans(context.Background()))

	stored, err := f.jobs.GetByID(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, stored.Status)
	require.Equal(t, 1, f.queue.len())

	msg, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobs[0].ID, msg.JobID)
}
