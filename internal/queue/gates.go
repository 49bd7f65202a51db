package queue

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shaiso/Promotor/internal/dispatch"
	"github.com/shaiso/Promotor/internal/domain"
)

// FeatureGates — enqueue-гейты: платформенные фичефлаги с canary
// allowlist'ом, месячная квота по тарифу и revenue-eligibility.
//
// Все гейты fail open: ошибка чтения тарифа или контента пропускает
// задачу дальше. Точность квоты дешевле недоставленного поста.
type FeatureGates struct {
	disabled   map[domain.Platform]bool
	canaryOnly map[domain.Platform]bool
	canaryUIDs map[string]bool

	// MinOwnerContent — минимум публикаций владельца для
	// revenue-eligibility (гейт не блокирует, только помечает payload).
	MinOwnerContent int

	plans   dispatch.PlanLookup
	content dispatch.ContentLookup
	tasks   taskCounter
	logger  *slog.Logger
}

// taskCounter — подсчёт задач пользователя за период (квота).
type taskCounter interface {
	CountSince(ctx context.Context, uid string, since time.Time) (int, error)
}

// NewFeatureGates собирает гейты из переменных окружения:
// PROMO_DISABLED_PLATFORMS, PROMO_CANARY_PLATFORMS, PROMO_CANARY_UIDS
// (все — csv-списки).
func NewFeatureGates(plans dispatch.PlanLookup, content dispatch.ContentLookup, tasks taskCounter, logger *slog.Logger) *FeatureGates {
	g := &FeatureGates{
		disabled:        make(map[domain.Platform]bool),
		canaryOnly:      make(map[domain.Platform]bool),
		canaryUIDs:      make(map[string]bool),
		MinOwnerContent: 3,
		plans:           plans,
		content:         content,
		tasks:           tasks,
		logger:          logger,
	}
	for _, p := range splitCSV(os.Getenv("PROMO_DISABLED_PLATFORMS")) {
		if plat, err := domain.ParsePlatform(p); err == nil {
			g.disabled[plat] = true
		}
	}
	for _, p := range splitCSV(os.Getenv("PROMO_CANARY_PLATFORMS")) {
		if plat, err := domain.ParsePlatform(p); err == nil {
			g.canaryOnly[plat] = true
		}
	}
	for _, uid := range splitCSV(os.Getenv("PROMO_CANARY_UIDS")) {
		g.canaryUIDs[uid] = true
	}
	return g
}

// PlatformAllowed проверяет фичефлаг платформы с учётом canary-режима.
func (g *FeatureGates) PlatformAllowed(platform domain.Platform, uid string) bool {
	if g.disabled[platform] {
		return false
	}
	if g.canaryOnly[platform] && !g.canaryUIDs[uid] {
		return false
	}
	return true
}

// QuotaExceeded проверяет месячную квоту пользователя по тарифу.
func (g *FeatureGates) QuotaExceeded(ctx context.Context, uid string) bool {
	if g.plans == nil || g.tasks == nil {
		return false
	}
	plan, err := g.plans.Plan(ctx, uid)
	if err != nil || plan == nil || plan.MonthlyTaskQuota <= 0 {
		if err != nil {
			g.logger.Warn("plan lookup failed, quota gate open", "uid", uid, "error", err)
		}
		return false
	}
	monthStart := time.Now().UTC().AddDate(0, -1, 0)
	count, err := g.tasks.CountSince(ctx, uid, monthStart)
	if err != nil {
		g.logger.Warn("task count failed, quota gate open", "uid", uid, "error", err)
		return false
	}
	return count >= plan.MonthlyTaskQuota
}

// RevenueEligible проверяет минимальное число публикаций владельца.
// nil = проверка не удалась (гейт открыт, payload не помечается).
func (g *FeatureGates) RevenueEligible(ctx context.Context, contentID string) *bool {
	if g.content == nil {
		return nil
	}
	c, err := g.content.Get(ctx, contentID)
	if err != nil || c == nil {
		return nil
	}
	eligible := c.OwnerContentCount >= g.MinOwnerContent
	return &eligible
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
