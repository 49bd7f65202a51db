package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Promotor/internal/bandit"
	"github.com/shaiso/Promotor/internal/dispatch"
	"github.com/shaiso/Promotor/internal/domain"
	"github.com/shaiso/Promotor/internal/queue"
	"github.com/shaiso/Promotor/internal/repo"
	"github.com/shaiso/Promotor/internal/signer"
)

// --- Fakes ---

type fakeTaskStore struct {
	queued   []domain.Task
	updated  []*domain.Task
	claimed  []uuid.UUID
	claimErr error
}

func (f *fakeTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	for i := range f.queued {
		if f.queued[i].ID == id {
			return &f.queued[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeTaskStore) Update(_ context.Context, task *domain.Task) error {
	copied := *task
	f.updated = append(f.updated, &copied)
	return nil
}

func (f *fakeTaskStore) ClaimProcessing(_ context.Context, id uuid.UUID) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimed = append(f.claimed, id)
	return nil
}

func (f *fakeTaskStore) ListQueued(_ context.Context, _ domain.TaskType, _ int) ([]domain.Task, error) {
	return f.queued, nil
}

func (f *fakeTaskStore) lastUpdate(t *testing.T) *domain.Task {
	t.Helper()
	if len(f.updated) == 0 {
		t.Fatal("expected task update")
	}
	return f.updated[len(f.updated)-1]
}

type fakePostStore struct {
	created   bool // исход TryCreateLock
	existing  *domain.PostRecord
	takeover  *repo.TakeoverResult
	finalized []repo.FinalizeParams
}

func (f *fakePostStore) TryCreateLock(_ context.Context, _ *domain.PostRecord) (bool, *domain.PostRecord, error) {
	return f.created, f.existing, nil
}

func (f *fakePostStore) TryTakeover(_ context.Context, _ domain.Platform, _ string, _ uuid.UUID, _ time.Duration) (*repo.TakeoverResult, error) {
	if f.takeover == nil {
		return &repo.TakeoverResult{Reason: "not_expired"}, nil
	}
	return f.takeover, nil
}

func (f *fakePostStore) Finalize(_ context.Context, _ domain.Platform, _ string, p repo.FinalizeParams) error {
	f.finalized = append(f.finalized, p)
	return nil
}

func (f *fakePostStore) RecentByContent(_ context.Context, _ string, _ int) ([]domain.PostRecord, error) {
	return nil, nil
}

type fakeDeadLetters struct {
	inserted []*domain.DeadLetterTask
}

func (f *fakeDeadLetters) Insert(_ context.Context, dl *domain.DeadLetterTask) error {
	f.inserted = append(f.inserted, dl)
	return nil
}

type fakeCounters struct {
	counts map[string]int
}

func (f *fakeCounters) Incr(_ context.Context, name string) error {
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[name]++
	return nil
}

type fakeDispatcher struct {
	result   *dispatch.Result
	err      error
	requests []dispatch.Request
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req dispatch.Request) (*dispatch.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &dispatch.Result{ExternalID: "ext-1"}, nil
}

type fakeCooldown struct {
	until  time.Time
	active bool
	noted  []time.Duration
}

func (f *fakeCooldown) Until(_ context.Context, _ domain.Platform) (time.Time, bool) {
	return f.until, f.active
}

func (f *fakeCooldown) Note(_ context.Context, _ domain.Platform, window time.Duration) {
	f.noted = append(f.noted, window)
}

type fakeEnqueuer struct {
	requests []queue.EnqueueRequest
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, req queue.EnqueueRequest) (*queue.EnqueueResult, error) {
	f.requests = append(f.requests, req)
	task := domain.Task{ID: uuid.New()}
	return &queue.EnqueueResult{Task: &task}, nil
}

type fakeSelector struct {
	selection bandit.Selection
}

func (f *fakeSelector) Select(_ context.Context, _ string, _ domain.Platform, _ []string, _ string) bandit.Selection {
	return f.selection
}

// --- Helpers ---

type workerFixture struct {
	worker     *Worker
	tasks      *fakeTaskStore
	posts      *fakePostStore
	deadbox    *fakeDeadLetters
	counters   *fakeCounters
	dispatcher *fakeDispatcher
	cooldown   *fakeCooldown
	enqueuer   *fakeEnqueuer
	signer     *signer.Signer
}

func newFixture(t *testing.T, tasks ...*domain.Task) *workerFixture {
	t.Helper()

	f := &workerFixture{
		tasks:      &fakeTaskStore{},
		posts:      &fakePostStore{created: true},
		deadbox:    &fakeDeadLetters{},
		counters:   &fakeCounters{},
		dispatcher: &fakeDispatcher{},
		cooldown:   &fakeCooldown{},
		enqueuer:   &fakeEnqueuer{},
		signer:     signer.New("test-secret"),
	}

	for _, task := range tasks {
		if task.Signature == "" {
			task.Signature = f.signer.Sign(task.SignableBody())
		}
		f.tasks.queued = append(f.tasks.queued, *task)
	}

	f.worker = New(Config{
		Tasks:             f.tasks,
		Posts:             f.posts,
		DeadLetters:       f.deadbox,
		Counters:          f.counters,
		Cooldown:          f.cooldown,
		Dispatcher:        f.dispatcher,
		Signer:            f.signer,
		Enqueuer:          f.enqueuer,
		FastFollowEnabled: true,
		Logger:            slog.New(slog.NewTextHandler(testWriter{t}, nil)),
	})
	return f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func queuedTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewPlatformPostTask(domain.PlatformTelegram, "content-1", "user-1", "approved",
		domain.PostPayload{Message: "hello", Link: "https://example.com"}, "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return task
}

// --- Tests ---

func TestProcessNext_EmptyQueue(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != nil {
		t.Errorf("empty queue should give nil outcome, got %+v", outcome)
	}
}

func TestProcessNext_Success(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", outcome.Status)
	}
	if outcome.ExternalID != "ext-1" {
		t.Errorf("expected external id ext-1, got %s", outcome.ExternalID)
	}

	// Запись поста финализирована успехом
	if len(f.posts.finalized) != 1 || !f.posts.finalized[0].Success {
		t.Fatalf("expected one successful finalize, got %+v", f.posts.finalized)
	}
	if f.counters.counts[repo.CounterTaskCompletedPrefix+"platform_post"] != 1 {
		t.Error("completed counter should be incremented")
	}
}

func TestProcessNext_NotEligibleBeforeNextAttempt(t *testing.T) {
	task := queuedTask(t)
	task.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	f := newFixture(t, task)

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != nil {
		t.Error("task before nextAttemptAt should not be picked")
	}
	if len(f.dispatcher.requests) != 0 {
		t.Error("no dispatch should happen")
	}
}

func TestProcessNext_IntegrityFailure(t *testing.T) {
	task := queuedTask(t)
	task.Signature = "deadbeef"
	f := newFixture(t, task)

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", outcome.Status)
	}
	if outcome.ErrorClass != domain.ErrClassIntegrity {
		t.Errorf("expected integrity_failed class, got %s", outcome.ErrorClass)
	}

	// Повреждённая задача не диспатчится и уходит в dead letter
	if len(f.dispatcher.requests) != 0 {
		t.Error("corrupted task must never be dispatched")
	}
	if len(f.deadbox.inserted) != 1 {
		t.Fatal("expected dead letter insert")
	}
	if !f.deadbox.inserted[0].IntegrityFailed {
		t.Error("dead letter should carry integrity flag")
	}
}

func TestProcessNext_CooldownDeferral(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)

	until := time.Now().UTC().Add(10 * time.Minute)
	f.cooldown.until = until
	f.cooldown.active = true

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !outcome.Deferred {
		t.Fatal("expected deferral")
	}
	if outcome.SkipReason != domain.SkipRateLimitCooldown {
		t.Errorf("expected rate_limit_cooldown, got %s", outcome.SkipReason)
	}
	// Деферрал сдвигает nextAttemptAt за конец окна с запасом
	if !outcome.NextAttemptAt.Equal(until.Add(500 * time.Millisecond)) {
		t.Errorf("expected nextAttemptAt just past window, got %v", outcome.NextAttemptAt)
	}

	// Попытка не расходуется, диспатча нет
	updated := f.tasks.lastUpdate(t)
	if updated.Attempts != 0 {
		t.Errorf("deferral should not consume attempt, got %d", updated.Attempts)
	}
	if len(f.dispatcher.requests) != 0 {
		t.Error("no dispatch during cooldown")
	}
}

func TestProcessNext_DuplicateLock(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)

	// Блокировка уже существует и разрешена успехом другой задачи
	success := true
	f.posts.created = false
	f.posts.existing = &domain.PostRecord{
		Platform:  task.Platform,
		PostHash:  task.PostHash,
		TaskID:    uuid.New(),
		Success:   &success,
		UpdatedAt: time.Now().UTC(),
	}

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != domain.TaskStatusSkipped {
		t.Errorf("expected skipped, got %s", outcome.Status)
	}
	if outcome.SkipReason != domain.SkipDuplicateRecent {
		t.Errorf("expected duplicate_recent_post, got %s", outcome.SkipReason)
	}
	if len(f.dispatcher.requests) != 0 {
		t.Error("duplicate must not be dispatched")
	}
}

func TestProcessNext_PendingLockNotStale(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)

	// Pending-блокировка другого воркера, ещё свежая
	f.posts.created = false
	f.posts.existing = &domain.PostRecord{
		Platform:  task.Platform,
		PostHash:  task.PostHash,
		TaskID:    uuid.New(),
		UpdatedAt: time.Now().UTC(),
	}

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.SkipReason != domain.SkipDuplicatePending {
		t.Errorf("expected duplicate_pending, got %s", outcome.SkipReason)
	}
}

func TestProcessNext_StaleLockTakeover(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)

	// Устаревшая pending-блокировка умершего воркера
	stale := &domain.PostRecord{
		Platform:  task.Platform,
		PostHash:  task.PostHash,
		TaskID:    uuid.New(),
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}
	f.posts.created = false
	f.posts.existing = stale
	f.posts.takeover = &repo.TakeoverResult{Taken: true, Existing: stale}

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != domain.TaskStatusCompleted {
		t.Errorf("takeover winner should complete, got %s", outcome.Status)
	}
	if f.counters.counts[repo.CounterTakeoverAttempt] != 1 || f.counters.counts[repo.CounterTakeoverSuccess] != 1 {
		t.Errorf("takeover counters wrong: %+v", f.counters.counts)
	}
}

func TestProcessNext_TakeoverLostToSuccess(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)

	stale := &domain.PostRecord{
		Platform:  task.Platform,
		PostHash:  task.PostHash,
		TaskID:    uuid.New(),
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}
	f.posts.created = false
	f.posts.existing = stale
	// Транзакция takeover увидела, что пост уже успешен
	f.posts.takeover = &repo.TakeoverResult{Reason: "already_success"}

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.SkipReason != domain.SkipDuplicateRecent {
		t.Errorf("expected duplicate_recent_post, got %s", outcome.SkipReason)
	}
	if f.counters.counts[repo.CounterTakeoverFailure] != 1 {
		t.Error("takeover failure counter should be incremented")
	}
}

func TestProcessNext_RetryableError(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)
	f.dispatcher.err = errors.New("request timeout")

	before := time.Now().UTC()
	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !outcome.Retrying {
		t.Fatal("transient error should retry")
	}
	if outcome.ErrorClass != domain.ErrClassTransient {
		t.Errorf("expected transient, got %s", outcome.ErrorClass)
	}

	updated := f.tasks.lastUpdate(t)
	if updated.Status != domain.TaskStatusQueued {
		t.Errorf("expected queued, got %s", updated.Status)
	}
	if updated.Attempts != 1 {
		t.Errorf("expected attempts=1, got %d", updated.Attempts)
	}
	// nextAttemptAt сдвинут минимум на базовый backoff
	if updated.NextAttemptAt.Before(before.Add(DefaultBaseBackoff)) {
		t.Errorf("nextAttemptAt %v should be at least base backoff in the future", updated.NextAttemptAt)
	}
}

func TestProcessNext_RateLimitSetsCooldown(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)
	f.dispatcher.err = errors.New("429 too many requests")

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.ErrorClass != domain.ErrClassRateLimit {
		t.Errorf("expected rate_limit, got %s", outcome.ErrorClass)
	}
	// Окно cooldown поставлено для всей платформы
	if len(f.cooldown.noted) != 1 {
		t.Fatal("expected cooldown window to be set")
	}
	if f.counters.counts[repo.CounterRateLimitPrefix+"telegram"] != 1 {
		t.Error("rate limit counter should be incremented")
	}
}

func TestProcessNext_AuthErrorTerminal(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)
	f.dispatcher.err = errors.New("unauthorized: token expired")

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// auth терминальна с первой попытки
	if outcome.Retrying {
		t.Fatal("auth error must not retry")
	}
	if outcome.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", outcome.Status)
	}
	if len(f.deadbox.inserted) != 1 {
		t.Error("expected dead letter insert")
	}
	// Провал зафиксирован и в аудите постов
	if len(f.posts.finalized) != 1 || f.posts.finalized[0].Success {
		t.Errorf("expected failed finalize, got %+v", f.posts.finalized)
	}
}

func TestProcessNext_AttemptsExhausted(t *testing.T) {
	task := queuedTask(t)
	task.Attempts = DefaultMaxAttempts - 1
	f := newFixture(t, task)
	f.dispatcher.err = errors.New("request timeout")

	outcome, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Retryable класс, но попытки кончились
	if outcome.Retrying {
		t.Fatal("exhausted task must not retry")
	}
	if outcome.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", outcome.Status)
	}
	if f.counters.counts[repo.CounterTasksDeadLettered] != 1 {
		t.Error("dead letter counter should be incremented")
	}
}

func TestProcessNext_FastFollow(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)
	f.dispatcher.result = &dispatch.Result{
		ExternalID: "ext-2",
		Metrics:    map[string]int{"clicks": 12, "impressions": 300},
	}

	if _, err := f.worker.ProcessNext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Быстрые клики порождают follow-up задачу
	if len(f.enqueuer.requests) != 1 {
		t.Fatal("expected fast-follow enqueue")
	}
	follow := f.enqueuer.requests[0]
	if follow.Reason != "fast_follow" {
		t.Errorf("expected fast_follow reason, got %s", follow.Reason)
	}
	if !follow.Payload.FastFollow {
		t.Error("follow-up payload should be marked fast_follow")
	}
	if follow.Delay < 30*time.Second || follow.Delay > 2*time.Minute {
		t.Errorf("follow-up delay %v outside [30s, 2m]", follow.Delay)
	}
	if f.counters.counts[repo.CounterFastFollows] != 1 {
		t.Error("fast follow counter should be incremented")
	}
}

func TestProcessNext_FastFollowNotRecursive(t *testing.T) {
	task := queuedTask(t)
	task.Payload.FastFollow = true
	f := newFixture(t, task)
	f.dispatcher.result = &dispatch.Result{
		ExternalID: "ext-3",
		Metrics:    map[string]int{"clicks": 50},
	}

	if _, err := f.worker.ProcessNext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// fast-follow задача не порождает новый fast-follow
	if len(f.enqueuer.requests) != 0 {
		t.Error("fast-follow task must not chain another fast-follow")
	}
}

func TestProcessNext_VariantSelection(t *testing.T) {
	task := queuedTask(t)
	task.Payload.Variants = []string{"variant a", "variant b"}
	f := newFixture(t, task)
	f.worker.selector = &fakeSelector{selection: bandit.Selection{
		Variant: "variant b", Index: 1, Strategy: bandit.StrategyBandit,
	}}

	if _, err := f.worker.ProcessNext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Выбранный вариант подменяет message перед диспатчем
	if len(f.dispatcher.requests) != 1 {
		t.Fatal("expected dispatch")
	}
	if f.dispatcher.requests[0].Payload.Message != "variant b" {
		t.Errorf("expected selected variant in message, got %q", f.dispatcher.requests[0].Payload.Message)
	}

	// Вариант зафиксирован в записи поста
	if f.posts.finalized[0].UsedVariant != "variant b" {
		t.Errorf("expected used variant in finalize, got %q", f.posts.finalized[0].UsedVariant)
	}
}

func TestProcessByID_Success(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)

	outcome, err := f.worker.ProcessByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", outcome.Status)
	}
	if len(f.tasks.claimed) != 1 || f.tasks.claimed[0] != task.ID {
		t.Error("task should be claimed before processing")
	}
}

func TestProcessByID_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.worker.ProcessByID(context.Background(), uuid.New())
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestProcessByID_ClaimRaceLost(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)
	// Другой воркер увёл задачу между событием и claim'ом
	f.tasks.claimErr = repo.ErrInvalidState

	_, err := f.worker.ProcessByID(context.Background(), task.ID)
	if !errors.Is(err, ErrTaskNotQueued) {
		t.Errorf("lost claim race should give ErrTaskNotQueued, got %v", err)
	}
	if len(f.dispatcher.requests) != 0 {
		t.Error("lost race must not dispatch")
	}
}

func TestProcessByID_NotYetEligible(t *testing.T) {
	task := queuedTask(t)
	task.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	f := newFixture(t, task)

	_, err := f.worker.ProcessByID(context.Background(), task.ID)
	if !errors.Is(err, ErrTaskNotQueued) {
		t.Errorf("deferred task should give ErrTaskNotQueued, got %v", err)
	}
	if len(f.tasks.claimed) != 0 {
		t.Error("deferred task must not be claimed")
	}
}

func TestWorker_StoppedRejectsProcessing(t *testing.T) {
	task := queuedTask(t)
	f := newFixture(t, task)

	f.worker.Stop()

	if _, err := f.worker.ProcessNext(context.Background()); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("expected ErrWorkerStopped from ProcessNext, got %v", err)
	}
	if _, err := f.worker.ProcessByID(context.Background(), task.ID); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("expected ErrWorkerStopped from ProcessByID, got %v", err)
	}
	if len(f.dispatcher.requests) != 0 {
		t.Error("stopped worker must not dispatch")
	}
}
