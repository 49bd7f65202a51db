package queue

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shaiso/Promotor/internal/domain"
	"github.com/shaiso/Promotor/internal/repo"
	"github.com/shaiso/Promotor/internal/signer"
)

// --- Fakes ---

type fakeTaskStore struct {
	created   []*domain.Task
	pending   bool
	createErr error
	lookupErr error
}

func (f *fakeTaskStore) Create(_ context.Context, task *domain.Task) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, task)
	return nil
}

func (f *fakeTaskStore) HasPending(_ context.Context, _ domain.Platform, _, _ string) (bool, error) {
	return f.pending, f.lookupErr
}

type fakePostStore struct {
	recent    *domain.PostRecord
	lookupErr error
}

func (f *fakePostStore) HasRecentSuccess(_ context.Context, _ string, _ time.Time) (*domain.PostRecord, error) {
	return f.recent, f.lookupErr
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

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestGates собирает гейты с чистым окружением, без внешних lookup'ов.
func newTestGates(t *testing.T) *FeatureGates {
	t.Helper()
	t.Setenv("PROMO_DISABLED_PLATFORMS", "")
	t.Setenv("PROMO_CANARY_PLATFORMS", "")
	t.Setenv("PROMO_CANARY_UIDS", "")
	return NewFeatureGates(nil, nil, nil, testLogger())
}

func enqueueRequest() EnqueueRequest {
	return EnqueueRequest{
		Platform:  domain.PlatformTelegram,
		ContentID: "content-1",
		UID:       "user-1",
		Reason:    "approved",
		Payload: domain.PostPayload{
			Message: "hello world",
			Link:    "https://example.com/c/1",
		},
		SkipIfDuplicate: true,
	}
}

// --- Tests ---

func TestEnqueue_CreatesSignedTask(t *testing.T) {
	tasks := &fakeTaskStore{}
	counters := &fakeCounters{}
	sig := signer.New("test-secret")
	svc := NewService(tasks, &fakePostStore{}, counters, newTestGates(t), sig, nil, testLogger())

	req := enqueueRequest()
	res, err := svc.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped {
		t.Fatalf("task should not be skipped: %s", res.Reason)
	}
	if len(tasks.created) != 1 {
		t.Fatalf("expected 1 created task, got %d", len(tasks.created))
	}

	task := tasks.created[0]
	if task.Status != domain.TaskStatusQueued {
		t.Errorf("new task should be queued, got %s", task.Status)
	}
	if task.PostHash != PostHash(req.Platform, req.ContentID, req.Reason, req.Payload) {
		t.Error("post hash mismatch")
	}
	// Подпись валидна относительно иммутабельного тела
	if !sig.Verify(task.SignableBody(), task.Signature) {
		t.Error("signature should verify")
	}
	if counters.counts[repo.CounterTasksEnqueued] != 1 {
		t.Error("enqueued counter should increment")
	}
}

func TestEnqueue_DisabledPlatformSkips(t *testing.T) {
	t.Setenv("PROMO_DISABLED_PLATFORMS", "telegram,reddit")
	t.Setenv("PROMO_CANARY_PLATFORMS", "")
	t.Setenv("PROMO_CANARY_UIDS", "")
	gates := NewFeatureGates(nil, nil, nil, testLogger())

	tasks := &fakeTaskStore{}
	svc := NewService(tasks, &fakePostStore{}, nil, gates, signer.New("s"), nil, testLogger())

	res, err := svc.Enqueue(context.Background(), enqueueRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped || res.Reason != domain.SkipDisabledByFlag {
		t.Errorf("expected feature-flag skip, got %+v", res)
	}
	if len(tasks.created) != 0 {
		t.Error("no task should be created for disabled platform")
	}
}

func TestEnqueue_RecentSuccessDedup(t *testing.T) {
	succeeded := true
	posts := &fakePostStore{recent: &domain.PostRecord{Success: &succeeded}}
	tasks := &fakeTaskStore{}
	counters := &fakeCounters{}
	svc := NewService(tasks, posts, counters, newTestGates(t), signer.New("s"), nil, testLogger())

	res, err := svc.Enqueue(context.Background(), enqueueRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped || res.Reason != domain.SkipDuplicateRecent {
		t.Errorf("expected duplicate_recent skip, got %+v", res)
	}
	if len(tasks.created) != 0 {
		t.Error("no task should be created")
	}
	if counters.counts[repo.CounterDuplicateSkips] != 1 {
		t.Error("duplicate skip counter should increment")
	}
}

func TestEnqueue_ForceRepostBypassesDedup(t *testing.T) {
	succeeded := true
	posts := &fakePostStore{recent: &domain.PostRecord{Success: &succeeded}}
	tasks := &fakeTaskStore{}
	svc := NewService(tasks, posts, nil, newTestGates(t), signer.New("s"), nil, testLogger())

	req := enqueueRequest()
	req.ForceRepost = true
	res, err := svc.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped {
		t.Errorf("force repost should bypass dedup, got skip %s", res.Reason)
	}
	if len(tasks.created) != 1 {
		t.Error("task should be created despite recent success")
	}
}

func TestEnqueue_PendingDuplicateSkips(t *testing.T) {
	tasks := &fakeTaskStore{pending: true}
	svc := NewService(tasks, &fakePostStore{}, nil, newTestGates(t), signer.New("s"), nil, testLogger())

	res, err := svc.Enqueue(context.Background(), enqueueRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped || res.Reason != domain.SkipDuplicatePending {
		t.Errorf("expected duplicate_pending skip, got %+v", res)
	}
}

func TestEnqueue_DedupLookupErrorFailsOpen(t *testing.T) {
	// Ошибка чтения дедупа не должна терять пост
	posts := &fakePostStore{lookupErr: errors.New("db down")}
	tasks := &fakeTaskStore{}
	svc := NewService(tasks, posts, nil, newTestGates(t), signer.New("s"), nil, testLogger())

	res, err := svc.Enqueue(context.Background(), enqueueRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped {
		t.Errorf("dedup error should fail open, got skip %s", res.Reason)
	}
	if len(tasks.created) != 1 {
		t.Error("task should be created when dedup lookup fails")
	}
}

func TestEnqueue_DelayShiftsFirstAttempt(t *testing.T) {
	tasks := &fakeTaskStore{}
	svc := NewService(tasks, &fakePostStore{}, nil, newTestGates(t), signer.New("s"), nil, testLogger())

	req := enqueueRequest()
	req.Delay = 90 * time.Second
	before := time.Now().UTC()
	if _, err := svc.Enqueue(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := tasks.created[0]
	if task.NextAttemptAt.Before(before.Add(90 * time.Second)) {
		t.Errorf("first attempt should be delayed by 90s, got %v", task.NextAttemptAt)
	}
}

func TestEnqueue_CreateErrorPropagates(t *testing.T) {
	wantErr := errors.New("insert failed")
	tasks := &fakeTaskStore{createErr: wantErr}
	svc := NewService(tasks, &fakePostStore{}, nil, newTestGates(t), signer.New("s"), nil, testLogger())

	_, err := svc.Enqueue(context.Background(), enqueueRequest())
	if !errors.Is(err, wantErr) {
		t.Errorf("infrastructure error should propagate, got %v", err)
	}
}

func TestPostHash_Deterministic(t *testing.T) {
	payload := domain.PostPayload{Message: "msg", Link: "link", Media: "media"}

	h1 := PostHash(domain.PlatformTelegram, "c1", "approved", payload)
	h2 := PostHash(domain.PlatformTelegram, "c1", "approved", payload)
	if h1 != h2 {
		t.Error("same inputs should hash identically")
	}

	// Изменение любого канонического поля меняет hash
	other := payload
	other.Message = "different"
	if PostHash(domain.PlatformTelegram, "c1", "approved", other) == h1 {
		t.Error("message change should change hash")
	}
	if PostHash(domain.PlatformTwitter, "c1", "approved", payload) == h1 {
		t.Error("platform change should change hash")
	}

	// Волатильные поля в hash не входят
	volatile := payload
	volatile.Shortlink = "https://promo.sh/abc"
	volatile.FastFollow = true
	if PostHash(domain.PlatformTelegram, "c1", "approved", volatile) != h1 {
		t.Error("volatile fields must not affect hash")
	}
}
