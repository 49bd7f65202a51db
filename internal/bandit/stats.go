package bandit

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Promotor/internal/domain"
)

// OutcomeMetrics — наблюдаемые метрики одного успешного поста.
type OutcomeMetrics struct {
	Clicks      int
	Impressions int

	// Quality — внешняя оценка качества текста, 0..100. nil = не обновлять.
	Quality *float64
}

// mutableStats — транзакционный read-modify-write строк variant_stats.
type mutableStats interface {
	Mutate(ctx context.Context, contentID string, platform domain.Platform, values []string, fn func(rows []*domain.VariantStatsRow) error) error
}

// Recorder обновляет статистику вариантов по исходам постов.
type Recorder struct {
	stats  mutableStats
	cfg    Config
	logger *slog.Logger
}

// NewRecorder создаёт Recorder.
func NewRecorder(stats mutableStats, cfg Config, logger *slog.Logger) *Recorder {
	return &Recorder{stats: stats, cfg: cfg, logger: logger}
}

// RecordPost фиксирует успешный пост варианта variant: decay всех строк
// пары, инкремент счётчиков, пересчёт аномалий и подавления.
//
// Всё происходит в одной транзакции под блокировкой строк, поэтому
// конкурирующие воркеры не теряют обновления друг друга.
func (r *Recorder) RecordPost(ctx context.Context, contentID string, platform domain.Platform, variant string, allVariants []string, m OutcomeMetrics) error {
	return r.stats.Mutate(ctx, contentID, platform, allVariants, func(rows []*domain.VariantStatsRow) error {
		now := time.Now().UTC()
		for _, row := range rows {
			ApplyDecay(row, now, r.cfg.HalfLife)
		}

		for _, row := range rows {
			if row.Value != variant {
				continue
			}
			row.Posts++
			row.Clicks += m.Clicks
			row.Impressions += m.Impressions
			row.DecayedPosts++
			row.DecayedClicks += float64(m.Clicks)
			row.LastPostAt = &now
			if m.Quality != nil {
				row.QualityScore = m.Quality
			}
		}

		r.reassess(rows, now)
		return nil
	})
}

// reassess пересчитывает флаги аномалии и подавления после обновления.
func (r *Recorder) reassess(rows []*domain.VariantStatsRow, now time.Time) {
	median := medianCTR(rows)

	for _, row := range rows {
		// Аномалия: CTR подозрительно выше медианы — похоже на накрутку
		// кликов. Флаг пересчитывается в обе стороны: distribution
		// может выровняться и снять подозрение.
		if median > 0 && row.DecayedPosts >= float64(r.cfg.AnomalyMinPosts) {
			anomalous := row.DecayedCTR() >= r.cfg.AnomalyCTRFactor*median
			row.Anomaly = anomalous
			if anomalous && r.cfg.QuarantineOnAnomaly {
				row.Quarantined = true
			}
			if !anomalous {
				row.Quarantined = false
			}
		}

		// Подавление: стабильно слабый CTR при достаточной выборке.
		if row.Posts >= r.cfg.SuppressMinPosts &&
			row.DecayedCTR() < r.cfg.SuppressBelowRatio*r.cfg.BaselineCTR {
			if !row.Suppressed {
				row.Suppressed = true
				row.SuppressedAt = &now
				r.logger.Info("variant suppressed",
					"content_id", row.ContentID,
					"platform", row.Platform,
					"ctr", row.DecayedCTR())
			}
		}
	}
}

// FastFollowDelay возвращает задержку адаптивного fast-follow поста:
// min(2 мин, max(30 c, 0.15·baseBackoff)).
func FastFollowDelay(baseBackoff time.Duration) time.Duration {
	d := time.Duration(0.15 * float64(baseBackoff))
	if d < 30*time.Second {
		d = 30 * time.Second
	}
	if d > 2*time.Minute {
		d = 2 * time.Minute
	}
	return d
}
