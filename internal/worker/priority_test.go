package worker

import (
	"testing"

	"github.com/shaiso/Promotor/internal/domain"
)

func TestEngagementScore_Empty(t *testing.T) {
	if score := engagementScore(nil); score != 0 {
		t.Errorf("no records should score 0, got %f", score)
	}

	// Записи без метрик тоже дают ноль
	recs := []domain.PostRecord{{}, {}}
	if score := engagementScore(recs); score != 0 {
		t.Errorf("records without metrics should score 0, got %f", score)
	}
}

func TestEngagementScore_ImpressionsCapped(t *testing.T) {
	recs := []domain.PostRecord{
		{Metrics: map[string]any{"impressions": float64(10000)}},
	}

	// Показы ограничены cap'ом 500 · вес 0.5 = 250
	if score := engagementScore(recs); score != impressionsCap*impressionWeight {
		t.Errorf("expected capped score %f, got %f", impressionsCap*impressionWeight, score)
	}
}

func TestEngagementScore_LikeRate(t *testing.T) {
	recs := []domain.PostRecord{
		{Metrics: map[string]any{"impressions": float64(100), "likes": float64(10)}},
	}

	// 100·0.5 + (10/100)·200 = 70
	want := 100*impressionWeight + 0.1*likeRateWeight
	if score := engagementScore(recs); score != want {
		t.Errorf("expected %f, got %f", want, score)
	}
}

func TestEngagementScore_SumsAcrossRecords(t *testing.T) {
	recs := []domain.PostRecord{
		{Metrics: map[string]any{"impressions": float64(100)}},
		{Metrics: map[string]any{"impressions": float64(150)}},
	}

	if score := engagementScore(recs); score != 250*impressionWeight {
		t.Errorf("expected %f, got %f", 250*impressionWeight, score)
	}
}

func TestMetricValue_Types(t *testing.T) {
	m := map[string]any{
		"float": float64(3),
		"int":   7,
		"text":  "nope",
	}

	if metricValue(m, "float") != 3 {
		t.Error("float64 metric should be read")
	}
	if metricValue(m, "int") != 7 {
		t.Error("int metric should be read")
	}
	if metricValue(m, "text") != 0 {
		t.Error("non-numeric metric should give 0")
	}
	if metricValue(m, "missing") != 0 {
		t.Error("missing metric should give 0")
	}
}
