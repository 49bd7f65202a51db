package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Promotor/internal/dispatch"
	"github.com/shaiso/Promotor/internal/domain"
)

type fakePlanLookup struct {
	plan *dispatch.Plan
	err  error
}

func (f *fakePlanLookup) Plan(_ context.Context, _ string) (*dispatch.Plan, error) {
	return f.plan, f.err
}

type fakeContentLookup struct {
	content *dispatch.Content
	err     error
}

func (f *fakeContentLookup) Get(_ context.Context, _ string) (*dispatch.Content, error) {
	return f.content, f.err
}

type fakeTaskCounter struct {
	count int
	err   error
}

func (f *fakeTaskCounter) CountSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.count, f.err
}

func TestPlatformAllowed_DisabledList(t *testing.T) {
	t.Setenv("PROMO_DISABLED_PLATFORMS", "telegram, reddit")
	t.Setenv("PROMO_CANARY_PLATFORMS", "")
	t.Setenv("PROMO_CANARY_UIDS", "")
	g := NewFeatureGates(nil, nil, nil, testLogger())

	if g.PlatformAllowed(domain.PlatformTelegram, "u1") {
		t.Error("telegram should be disabled")
	}
	if g.PlatformAllowed(domain.PlatformReddit, "u1") {
		t.Error("reddit should be disabled")
	}
	if !g.PlatformAllowed(domain.PlatformTwitter, "u1") {
		t.Error("twitter should stay enabled")
	}
}

func TestPlatformAllowed_CanaryAllowlist(t *testing.T) {
	t.Setenv("PROMO_DISABLED_PLATFORMS", "")
	t.Setenv("PROMO_CANARY_PLATFORMS", "tiktok")
	t.Setenv("PROMO_CANARY_UIDS", "u1,u2")
	g := NewFeatureGates(nil, nil, nil, testLogger())

	// Canary-платформа открыта только для allowlist'а
	if !g.PlatformAllowed(domain.PlatformTikTok, "u1") {
		t.Error("canary uid should pass")
	}
	if g.PlatformAllowed(domain.PlatformTikTok, "u3") {
		t.Error("non-canary uid should be blocked")
	}
	// Остальные платформы канарейкой не затронуты
	if !g.PlatformAllowed(domain.PlatformTelegram, "u3") {
		t.Error("non-canary platform should pass for everyone")
	}
}

func TestQuotaExceeded(t *testing.T) {
	plans := &fakePlanLookup{plan: &dispatch.Plan{Tier: "basic", MonthlyTaskQuota: 10}}
	counter := &fakeTaskCounter{count: 10}
	g := newTestGates(t)
	g.plans = plans
	g.tasks = counter

	if !g.QuotaExceeded(context.Background(), "u1") {
		t.Error("count at quota should block")
	}

	counter.count = 9
	if g.QuotaExceeded(context.Background(), "u1") {
		t.Error("count under quota should pass")
	}

	// Нулевая квота = безлимит
	plans.plan = &dispatch.Plan{Tier: "pro", MonthlyTaskQuota: 0}
	counter.count = 100000
	if g.QuotaExceeded(context.Background(), "u1") {
		t.Error("zero quota means unlimited")
	}
}

func TestQuotaExceeded_FailsOpen(t *testing.T) {
	g := newTestGates(t)

	// Без lookup'ов гейт всегда открыт
	if g.QuotaExceeded(context.Background(), "u1") {
		t.Error("nil lookups should open the gate")
	}

	// Ошибка чтения тарифа открывает гейт
	g.plans = &fakePlanLookup{err: errors.New("plan service down")}
	g.tasks = &fakeTaskCounter{count: 100}
	if g.QuotaExceeded(context.Background(), "u1") {
		t.Error("plan lookup error should open the gate")
	}

	// Ошибка подсчёта задач тоже
	g.plans = &fakePlanLookup{plan: &dispatch.Plan{MonthlyTaskQuota: 1}}
	g.tasks = &fakeTaskCounter{err: errors.New("db down")}
	if g.QuotaExceeded(context.Background(), "u1") {
		t.Error("count error should open the gate")
	}
}

func TestRevenueEligible(t *testing.T) {
	g := newTestGates(t)

	// Без content lookup'а проверка не выполняется
	if got := g.RevenueEligible(context.Background(), "c1"); got != nil {
		t.Errorf("nil lookup should give nil, got %v", *got)
	}

	g.content = &fakeContentLookup{content: &dispatch.Content{OwnerContentCount: 5}}
	if got := g.RevenueEligible(context.Background(), "c1"); got == nil || !*got {
		t.Error("owner with enough content should be eligible")
	}

	g.content = &fakeContentLookup{content: &dispatch.Content{OwnerContentCount: 1}}
	if got := g.RevenueEligible(context.Background(), "c1"); got == nil || *got {
		t.Error("owner below threshold should not be eligible")
	}

	// Ошибка lookup'а — nil, payload не помечается
	g.content = &fakeContentLookup{err: errors.New("content service down")}
	if got := g.RevenueEligible(context.Background(), "c1"); got != nil {
		t.Error("lookup error should give nil")
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected parts: %v", got)
	}
	if splitCSV("") != nil {
		t.Error("empty input should give nil")
	}
}
