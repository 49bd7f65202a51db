package worker

import (
	"context"
	"math/rand"

	"github.com/shaiso/Promotor/internal/domain"
)

// Константы приоритизации. Жадная эвристика: вклады ограничены сверху,
// точные веса — вопрос тюнинга, не корректности. Старые задачи не
// голодают за счёт recency-сортировки исходного batch'а.
const (
	velocityCap       = 1000.0
	highVelocityBoost = 250.0
	impressionsCap    = 500.0
	impressionWeight  = 0.5
	likeRateWeight    = 200.0
	tieBreakSpan      = 10.0
	engagementDepth   = 5
)

// pickBest возвращает индекс задачи с максимальным приоритетом.
func (w *Worker) pickBest(ctx context.Context, tasks []domain.Task) int {
	bestIdx := 0
	bestScore := -1.0
	for i := range tasks {
		score := w.scoreTask(ctx, &tasks[i])
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}

// scoreTask считает приоритет задачи: ограниченный velocity-сигнал
// контента + ограниченный engagement последних постов + случайный
// tie-break.
func (w *Worker) scoreTask(ctx context.Context, task *domain.Task) float64 {
	score := 0.0

	if w.content != nil {
		if c, err := w.content.Get(ctx, task.ContentID); err == nil && c != nil {
			v := c.Velocity
			if v > velocityCap {
				v = velocityCap
			}
			score += v
			if c.HighVelocity {
				score += highVelocityBoost
			}
		}
	}

	if recs, err := w.posts.RecentByContent(ctx, task.ContentID, engagementDepth); err == nil {
		score += engagementScore(recs)
	}

	return score + rand.Float64()*tieBreakSpan
}

// engagementScore — ограниченный вклад свежих метрик контента:
// показы (cap 500, вес 0.5) и like rate (вес 200).
func engagementScore(recs []domain.PostRecord) float64 {
	var impressions, likes float64
	for i := range recs {
		m := recs[i].Metrics
		if m == nil {
			continue
		}
		impressions += metricValue(m, "impressions")
		likes += metricValue(m, "likes")
	}

	if impressions > impressionsCap {
		impressions = impressionsCap
	}
	score := impressions * impressionWeight
	if impressions > 0 {
		score += likes / impressions * likeRateWeight
	}
	return score
}

// metricValue достаёт число из JSON-метрик (числа приходят как float64
// после Unmarshal, но целые значения из тестов тоже поддерживаем).
func metricValue(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
