package bandit

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/shaiso/Promotor/internal/domain"
	"github.com/shaiso/Promotor/internal/repo"
)

// Стратегии выбора варианта.
const (
	StrategyRotation = "rotation"
	StrategyBandit   = "bandit"
)

// Selection — результат выбора варианта.
type Selection struct {
	// Variant / Index — выбранный текст и его позиция в списке вариантов.
	Variant string
	Index   int

	// Strategy — фактически применённая стратегия.
	Strategy string

	// ColdStart — вариант выбран по cold-start приоритету, а не по скору.
	ColdStart bool

	// Score — итоговый скор выбранного варианта (0 для rotation/cold start).
	Score float64
}

// statsStore — доступ к строкам variant_stats.
type statsStore interface {
	Rows(ctx context.Context, contentID string, platform domain.Platform) ([]domain.VariantStatsRow, error)
}

// postCounter — количество постов пары content×platform (rotation).
type postCounter interface {
	CountByContentPlatform(ctx context.Context, contentID string, platform domain.Platform) (int, error)
}

// selectionLog — журнал исходов выбора для внешнего тюнера.
type selectionLog interface {
	Record(ctx context.Context, o repo.SelectionOutcome) error
}

// Selector выбирает вариант текста для поста.
type Selector struct {
	stats      statsStore
	posts      postCounter
	selections selectionLog
	cfg        Config
	logger     *slog.Logger
}

// NewSelector создаёт Selector. selections может быть nil — тогда
// tuning-feedback не пишется.
func NewSelector(stats statsStore, posts postCounter, selections selectionLog, cfg Config, logger *slog.Logger) *Selector {
	return &Selector{stats: stats, posts: posts, selections: selections, cfg: cfg, logger: logger}
}

// Select выбирает вариант из variants по заданной стратегии.
// strategy == "" означает стратегию по умолчанию из конфигурации.
//
// Ошибки чтения статистики деградируют в rotation: выбор варианта
// никогда не блокирует диспатч.
func (s *Selector) Select(ctx context.Context, contentID string, platform domain.Platform, variants []string, strategy string) Selection {
	if len(variants) == 0 {
		return Selection{Index: -1}
	}
	if len(variants) == 1 {
		return Selection{Variant: variants[0], Index: 0, Strategy: StrategyRotation}
	}
	if strategy == "" {
		strategy = s.cfg.DefaultStrategy
	}

	if strategy == StrategyBandit {
		if sel, ok := s.selectBandit(ctx, contentID, platform, variants); ok {
			return sel
		}
		// Скоринг не дал кандидата (нет статистики или все вне ротации).
	}
	return s.selectRotation(ctx, contentID, platform, variants)
}

// selectRotation выбирает вариант по числу уже сделанных постов:
// детерминированный циклический проход по списку.
func (s *Selector) selectRotation(ctx context.Context, contentID string, platform domain.Platform, variants []string) Selection {
	count, err := s.posts.CountByContentPlatform(ctx, contentID, platform)
	if err != nil {
		s.logger.Warn("rotation fallback to random", "content_id", contentID, "error", err)
		count = rand.Intn(len(variants))
	}
	idx := count % len(variants)
	return Selection{Variant: variants[idx], Index: idx, Strategy: StrategyRotation}
}

// selectBandit применяет UCB1-скоринг к вариантам с историей и
// безусловный cold-start приоритет к вариантам без неё.
func (s *Selector) selectBandit(ctx context.Context, contentID string, platform domain.Platform, variants []string) (Selection, bool) {
	rows, err := s.stats.Rows(ctx, contentID, platform)
	if err != nil {
		s.logger.Warn("failed to load variant stats", "content_id", contentID, "error", err)
		return Selection{}, false
	}

	now := time.Now().UTC()
	byValue := make(map[string]*domain.VariantStatsRow, len(rows))
	decayed := make([]*domain.VariantStatsRow, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		ApplyDecay(row, now, s.cfg.HalfLife)
		byValue[row.Value] = row
		decayed = append(decayed, row)
	}

	// Cold start: вариант без единого поста всегда бьёт любой скор —
	// без этого новый вариант не набрал бы статистику никогда.
	var cold []int
	for i, v := range variants {
		row, ok := byValue[v]
		if !ok || row.DecayedPosts == 0 {
			if ok && !row.Selectable() {
				continue
			}
			cold = append(cold, i)
		}
	}
	if len(cold) > 0 {
		idx := cold[rand.Intn(len(cold))]
		sel := Selection{Variant: variants[idx], Index: idx, Strategy: StrategyBandit, ColdStart: true}
		s.recordSelection(ctx, contentID, platform, sel, byValue[variants[idx]])
		s.recordPenalties(ctx, contentID, platform, byValue, variants, idx)
		return sel, true
	}

	median := medianCTR(decayed)
	var totalPosts float64
	for _, row := range decayed {
		totalPosts += row.DecayedPosts
	}

	bestIdx := -1
	bestScore := math.Inf(-1)
	for i, v := range variants {
		row, ok := byValue[v]
		if !ok || !row.Selectable() {
			continue
		}
		score := s.score(row, median, totalPosts)
		// Крошечный случайный сдвиг разбивает точные ничьи.
		score += rand.Float64() * 1e-9
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return Selection{}, false
	}

	sel := Selection{Variant: variants[bestIdx], Index: bestIdx, Strategy: StrategyBandit, Score: bestScore}
	s.recordSelection(ctx, contentID, platform, sel, byValue[variants[bestIdx]])
	s.recordPenalties(ctx, contentID, platform, byValue, variants, bestIdx)
	return sel, true
}

// score считает UCB1-скор одного варианта.
func (s *Selector) score(row *domain.VariantStatsRow, median, totalPosts float64) float64 {
	ctrNorm := 0.0
	if median > 0 {
		ctrNorm = math.Min(1, row.DecayedCTR()/(2*median))
	}

	reach := reachProxy(row.Impressions)
	quality := s.qualityOf(row)

	ucb := 0.0
	if totalPosts > 1 && row.DecayedPosts > 0 {
		ucb = math.Sqrt(2*math.Log(totalPosts)/row.DecayedPosts) * s.cfg.ExplorationFactor
	}

	score := s.cfg.WeightCTR*ctrNorm + s.cfg.WeightReach*reach + s.cfg.WeightQuality*quality + ucb
	if row.Anomaly {
		score *= 0.6
	}
	return score
}

// recordSelection пишет tuning-feedback. Best-effort: ошибка записи
// никогда не влияет на сам выбор.
func (s *Selector) recordSelection(ctx context.Context, contentID string, platform domain.Platform, sel Selection, row *domain.VariantStatsRow) {
	if s.selections == nil {
		return
	}
	o := repo.SelectionOutcome{
		ContentID:  contentID,
		Platform:   platform,
		Variant:    sel.Variant,
		Strategy:   sel.Strategy,
		Score:      sel.Score,
		Penalty:    1.0,
		ColdStart:  sel.ColdStart,
		SelectedAt: time.Now().UTC(),
	}
	if row != nil {
		o.RewardCTR = row.DecayedCTR()
		o.RewardReach = reachProxy(row.Impressions)
		o.RewardQuality = s.qualityOf(row)
		if row.Anomaly {
			o.Penalty = 0.6
		}
	}
	if err := s.selections.Record(ctx, o); err != nil {
		s.logger.Warn("failed to record selection outcome", "content_id", contentID, "error", err)
	}
}

// recordPenalties пишет негативные reward-сэмплы за варианты, которые на
// момент выбора оставались подавленными или в карантине: тюнер видит не
// только победителей, но и цену исключения из ротации.
func (s *Selector) recordPenalties(ctx context.Context, contentID string, platform domain.Platform, rows map[string]*domain.VariantStatsRow, variants []string, chosen int) {
	if s.selections == nil {
		return
	}
	now := time.Now().UTC()
	for i, v := range variants {
		if i == chosen {
			continue
		}
		row := rows[v]
		if row == nil || row.Selectable() {
			continue
		}
		factor := 0.6
		if row.Quarantined && !row.Suppressed {
			factor = 0.85
		}
		o := repo.SelectionOutcome{
			ContentID:     contentID,
			Platform:      platform,
			Variant:       v,
			Strategy:      StrategyBandit,
			RewardCTR:     -row.DecayedCTR() * factor,
			RewardReach:   -reachProxy(row.Impressions) * factor,
			RewardQuality: -s.qualityOf(row) * factor,
			Penalty:       factor,
			SelectedAt:    now,
		}
		if err := s.selections.Record(ctx, o); err != nil {
			s.logger.Warn("failed to record variant penalty", "content_id", contentID, "variant", v, "error", err)
		}
	}
}

// qualityOf возвращает quality-компоненту варианта (default при отсутствии).
func (s *Selector) qualityOf(row *domain.VariantStatsRow) float64 {
	if row.QualityScore != nil {
		return *row.QualityScore / 100
	}
	return s.cfg.DefaultQuality
}

// reachProxy — логарифмический прокси охвата по lifetime-показам.
func reachProxy(impressions int) float64 {
	return math.Min(1, math.Log10(float64(impressions)+10)/3)
}
