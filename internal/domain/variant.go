package domain

import "time"

// VariantStatsRow — счётчики одного варианта для пары content×platform.
//
// Помимо пожизненных счётчиков (Posts/Clicks/Impressions) хранит
// экспоненциально затухающие DecayedClicks/DecayedPosts — недавняя
// активность доминирует. Инвариант: затухающие счётчики читаются и
// пишутся только после применения decay за время с LastDecayAt, поэтому
// их значение консистентно при любой частоте обращений.
type VariantStatsRow struct {
	// ContentID / Platform / Value — ключ строки.
	ContentID string   `json:"content_id"`
	Platform  Platform `json:"platform"`
	Value     string   `json:"value"`

	// Пожизненные счётчики.
	Posts       int `json:"posts"`
	Clicks      int `json:"clicks"`
	Impressions int `json:"impressions"`

	// Затухающие счётчики (half-life настраивается).
	DecayedClicks float64   `json:"decayed_clicks"`
	DecayedPosts  float64   `json:"decayed_posts"`
	LastDecayAt   time.Time `json:"last_decay_at"`

	LastPostAt *time.Time `json:"last_post_at,omitempty"`

	// Anomaly — CTR-всплеск относительно медианы (понижается в скоринге).
	Anomaly bool `json:"anomaly"`

	// Suppressed — вариант временно исключён из выбора за низкий CTR.
	// Снимается reactivation sweep'ом; подавление никогда не вечно.
	Suppressed   bool       `json:"suppressed"`
	SuppressedAt *time.Time `json:"suppressed_at,omitempty"`

	// Quarantined — аномальный вариант полностью исключён из скоринга.
	Quarantined bool `json:"quarantined"`

	// QualityScore — внешняя оценка качества текста, 0..100. nil = нет.
	QualityScore *float64 `json:"quality_score,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewVariantStatsRow создаёт пустую строку статистики варианта.
func NewVariantStatsRow(contentID string, platform Platform, value string) *VariantStatsRow {
	now := time.Now().UTC()
	return &VariantStatsRow{
		ContentID:   contentID,
		Platform:    platform,
		Value:       value,
		LastDecayAt: now,
		UpdatedAt:   now,
	}
}

// DecayedCTR возвращает CTR по затухающим счётчикам.
func (v *VariantStatsRow) DecayedCTR() float64 {
	if v.DecayedPosts <= 0 {
		return 0
	}
	return v.DecayedClicks / v.DecayedPosts
}

// Selectable возвращает true, если вариант участвует в скоринге.
func (v *VariantStatsRow) Selectable() bool {
	return !v.Suppressed && !v.Quarantined
}
