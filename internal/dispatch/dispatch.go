// Package dispatch определяет границу между очередью и внешним миром:
// диспатчеры платформ, lookup контента и тарифов. Все платформенные
// API-семантики живут за интерфейсом Dispatcher, ядро очереди о них
// ничего не знает.
package dispatch

import (
	"context"

	"github.com/shaiso/Promotor/internal/domain"
)

// Request — запрос на публикацию поста.
type Request struct {
	Platform  domain.Platform
	ContentID string
	UID       string
	Reason    string
	Payload   domain.PostPayload
}

// Result — исход публикации.
type Result struct {
	// ExternalID — id поста на стороне платформы.
	ExternalID string

	// Simulated — реального вызова платформы не было.
	Simulated bool

	// Metrics — метрики, которые платформа вернула сразу
	// (clicks/impressions, если API их отдаёт).
	Metrics map[string]int

	// Raw — усечённый сырой ответ платформы для аудита.
	Raw string
}

// Dispatcher публикует пост на одной платформе. Вызов может быть
// медленным и падать; очередь классифицирует ошибку по тексту.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (*Result, error)
}

// Content — запись контента, читаемая для обогащения payload.
type Content struct {
	ID          string
	Title       string
	Description string
	LandingURL  string
	Tags        []string

	// Velocity — внешний сигнал трендовости (входит в приоритет задач).
	Velocity float64

	// HighVelocity — контент помечен внешней системой как трендовый
	// (даёт фиксированный бонус к приоритету).
	HighVelocity bool

	// VariantStrategy — per-content override стратегии выбора варианта.
	VariantStrategy string

	// OwnerContentCount — сколько публикаций у владельца
	// (гейт revenue-eligibility).
	OwnerContentCount int
}

// ContentLookup — read-only доступ к записям контента.
// Ошибки не фатальны: обогащение просто пропускается.
type ContentLookup interface {
	Get(ctx context.Context, contentID string) (*Content, error)
}

// Plan — тариф пользователя.
type Plan struct {
	Tier string

	// MonthlyTaskQuota — месячный лимит задач; 0 = безлимит.
	MonthlyTaskQuota int
}

// PlanLookup — read-only доступ к тарифам.
type PlanLookup interface {
	Plan(ctx context.Context, uid string) (*Plan, error)
}
