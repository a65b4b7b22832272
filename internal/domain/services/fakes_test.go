package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/queue"
)

// In-memory repository doubles mirroring the conditional-update
// semantics of the SQL implementations.

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
	user, ok := r.users[id]
	if !ok {
		return models.ErrNotFound
	}
	user.Status = status
	return nil
}

func (r *memUserRepo) SetAdmin(_ context.Context, id int64, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return models.ErrNotFound
	}
	user.IsAdmin = isAdmin
	return nil
}

func (r *memUserRepo) CountUsers(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

type memTariffRepo struct {
	tariffs []*models.Tariff
}

func newMemTariffRepo() *memTariffRepo {
	free := "Free tier"
	monthly := "Monthly subscription"
	vip := "VIP"
	return &memTariffRepo{tariffs: []*models.Tariff{
		{ID: 1, Code: models.TariffCodeFree, Scope: models.ScopeDirectMessages, MonthlyLimit: 3, Currency: "USD", IsVisible: true, Description: &free},
		{ID: 2, Code: models.TariffCodeMonthly, Scope: models.ScopeAllChats, MonthlyLimit: models.UnlimitedQuota, PriceCents: 1000, Currency: "USD", IsVisible: true, Description: &monthly},
		{ID: 3, Code: models.TariffCodeVIP, Scope: models.ScopeAllChats, MonthlyLimit: models.UnlimitedQuota, Currency: "USD", Description: &vip},
	}}
}

func (r *memTariffRepo) GetByCode(_ context.Context, code string) (*models.Tariff, error) {
	for _, t := range r.tariffs {
		if t.Code == code {
			return t, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memTariffRepo) GetByID(_ context.Context, id int) (*models.Tariff, error) {
	for _, t := range r.tariffs {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memTariffRepo) ListVisible(_ context.Context) ([]*models.Tariff, error) {
	var visible []*models.Tariff
	for _, t := range r.tariffs {
		if t.IsVisible {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

type memSubscriptionRepo struct {
	mu   sync.Mutex
	subs []*models.Subscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{}
}

func (r *memSubscriptionRepo) Create(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = time.Now()
	copied := *sub
	r.subs = append(r.subs, &copied)
	return nil
}

func (r *memSubscriptionRepo) GetEffective(_ context.Context, userID int64, asOf time.Time) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *models.Subscription
	for _, sub := range r.subs {
		if sub.UserID != userID || !sub.ActiveAt(asOf) {
			continue
		}
		if best == nil || sub.StartsAt.After(best.StartsAt) {
			best = sub
		}
	}
	if best == nil {
		return nil, models.ErrNotFound
	}
	copied := *best
	return &copied, nil
}

func (r *memSubscriptionRepo) GetLatest(_ context.Context, userID int64) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *models.Subscription
	for _, sub := range r.subs {
		if sub.UserID != userID {
			continue
		}
		if best == nil || sub.StartsAt.After(best.StartsAt) {
			best = sub
		}
	}
	if best == nil {
		return nil, models.ErrNotFound
	}
	copied := *best
	return &copied, nil
}

func (r *memSubscriptionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment

	// subs receives the subscription created by FinalizeWithSubscription;
	// subCreateErr simulates an insert failure inside the transaction.
	subs         *memSubscriptionRepo
	subCreateErr error
}

func newMemPaymentRepo(subs *memSubscriptionRepo) *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[uuid.UUID]*models.Payment), subs: subs}
}

func (r *memPaymentRepo) Create(_ context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	copied := *payment
	r.payments[payment.ID] = &copied
	return nil
}

func (r *memPaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *payment
	return &copied, nil
}

func (r *memPaymentRepo) ListPending(_ context.Context, method models.PaymentMethod) ([]*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*models.Payment
	for _, payment := range r.payments {
		if payment.Status == models.PaymentPending && payment.Method == method {
			copied := *payment
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

func (r *memPaymentRepo) Finalize(_ context.Context, id uuid.UUID, status models.PaymentStatus, decidedBy int64, notes *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return models.ErrNotFound
	}
	if payment.Status != models.PaymentPending {
		return models.ErrPaymentFinalized
	}
	payment.Status = status
	payment.DecidedBy = &decidedBy
	payment.Notes = notes
	return nil
}

func (r *memPaymentRepo) FinalizeWithSubscription(ctx context.Context, id uuid.UUID, decidedBy int64, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return models.ErrNotFound
	}
	if payment.Status != models.PaymentPending {
		return models.ErrPaymentFinalized
	}
	// Transactional: a failed subscription insert leaves the payment
	// pending, mirroring the SQL rollback.
	if r.subCreateErr != nil {
		return r.subCreateErr
	}
	if err := r.subs.Create(ctx, sub); err != nil {
		return err
	}
	payment.Status = models.PaymentConfirmed
	payment.DecidedBy = &decidedBy
	return nil
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

func (r *memJobRepo) CountByStatus(_ context.Context) (map[models.JobStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.JobStatus]int64)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

type recordingQueue struct {
	mu         sync.Mutex
	messages   []queue.SynthesisJobMessage
	enqueueErr error
}

func (q *recordingQueue) Enqueue(_ context.Context, msg queue.SynthesisJobMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

type memAudioCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemAudioCache() *memAudioCache {
	return &memAudioCache{entries: make(map[string][]byte)}
}

func (c *memAudioCache) Get(_ context.Context, fingerprint string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[fingerprint], nil
}

func (c *memAudioCache) Set(_ context.Context, fingerprint string, audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = audio
	return nil
}

type recordingDeliverer struct {
	mu       sync.Mutex
	audio    []int64
	errors   []int64
	audioErr error
}

func (d *recordingDeliverer) DeliverAudio(_ context.Context, chatID int64, _ []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.audioErr != nil {
		return d.audioErr
	}
	d.audio = append(d.audio, chatID)
	return nil
}

func (d *recordingDeliverer) DeliverError(_ context.Context, chatID int64, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, chatID)
	return nil
}

func (d *recordingDeliverer) audioCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.audio)
}
