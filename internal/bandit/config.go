// Package bandit реализует адаптивный выбор варианта текста поста:
// экспоненциальный распад статистики, UCB1-скоринг с cold-start
// приоритетом, детекцию аномалий и подавление слабых вариантов.
package bandit

import (
	"os"
	"strconv"
	"time"
)

// Config — параметры движка выбора вариантов.
type Config struct {
	// HalfLife — период полураспада счётчиков кликов/постов.
	HalfLife time.Duration

	// ExplorationFactor масштабирует UCB-слагаемое и cold-start приоритет.
	ExplorationFactor float64

	// Веса компонент скоринга. В сумме ожидается 1.0, но не форсится.
	WeightCTR     float64
	WeightReach   float64
	WeightQuality float64

	// DefaultQuality подставляется вариантам без quality_score.
	DefaultQuality float64

	// BaselineCTR — целевой CTR, ниже доли которого вариант подавляется.
	BaselineCTR float64

	// SuppressBelowRatio — порог подавления: decayed CTR < ratio·baseline.
	SuppressBelowRatio float64

	// SuppressMinPosts — подавление возможно только после стольких постов.
	SuppressMinPosts int

	// SuppressionCooldown — через сколько sweep реактивирует подавленных.
	SuppressionCooldown time.Duration

	// AnomalyCTRFactor / AnomalyMinPosts — порог детекции накрутки:
	// decayed CTR ≥ factor·median при минимуме decayed постов.
	AnomalyCTRFactor float64
	AnomalyMinPosts  int

	// QuarantineOnAnomaly выводит аномальные варианты из ротации целиком
	// вместо down-weight ×0.6.
	QuarantineOnAnomaly bool

	// DefaultStrategy — стратегия при отсутствии per-content override
	// ("bandit" или "rotation").
	DefaultStrategy string
}

// DefaultConfig возвращает конфигурацию с боевыми значениями по умолчанию.
func DefaultConfig() Config {
	return Config{
		HalfLife:            720 * time.Minute,
		ExplorationFactor:   1.0,
		WeightCTR:           0.6,
		WeightReach:         0.25,
		WeightQuality:       0.15,
		DefaultQuality:      0.5,
		BaselineCTR:         0.03,
		SuppressBelowRatio:  0.6,
		SuppressMinPosts:    5,
		SuppressionCooldown: 12 * time.Hour,
		AnomalyCTRFactor:    4.0,
		AnomalyMinPosts:     3,
		QuarantineOnAnomaly: false,
		DefaultStrategy:     StrategyBandit,
	}
}

// ConfigFromEnv накладывает переменные окружения на DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("VARIANT_SELECTION_STRATEGY"); v == StrategyRotation || v == StrategyBandit {
		cfg.DefaultStrategy = v
	}
	if v, err := strconv.Atoi(os.Getenv("BANDIT_HALF_LIFE_MIN")); err == nil && v > 0 {
		cfg.HalfLife = time.Duration(v) * time.Minute
	}
	if v, err := strconv.ParseFloat(os.Getenv("BANDIT_EXPLORATION_FACTOR"), 64); err == nil && v > 0 {
		cfg.ExplorationFactor = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("BANDIT_BASELINE_CTR"), 64); err == nil && v > 0 {
		cfg.BaselineCTR = v
	}
	if os.Getenv("BANDIT_QUARANTINE_ON_ANOMALY") == "true" {
		cfg.QuarantineOnAnomaly = true
	}
	return cfg
}
