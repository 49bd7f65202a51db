package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Promotor/internal/domain"
)

// Task DTOs

// EnqueueTaskRequest — запрос на постановку задачи продвижения.
type EnqueueTaskRequest struct {
	Platform  string             `json:"platform"`
	ContentID string             `json:"content_id"`
	UID       string             `json:"uid"`
	Reason    string             `json:"reason,omitempty"`
	Payload   domain.PostPayload `json:"payload"`

	// SkipIfDuplicate — дедупликация по postHash. nil = включена.
	SkipIfDuplicate *bool `json:"skip_if_duplicate,omitempty"`

	// ForceRepost отключает дедупликацию.
	ForceRepost bool `json:"force_repost,omitempty"`

	// DelaySec откладывает первую попытку на указанное число секунд.
	DelaySec int `json:"delay_sec,omitempty"`
}

// EnqueueTaskResponse — исход постановки.
type EnqueueTaskResponse struct {
	Task       *TaskResponse `json:"task,omitempty"`
	Skipped    bool          `json:"skipped"`
	SkipReason string        `json:"skip_reason,omitempty"`
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID              uuid.UUID          `json:"id"`
	Type            string             `json:"type"`
	Status          string             `json:"status"`
	Platform        string             `json:"platform"`
	ContentID       string             `json:"content_id"`
	UID             string             `json:"uid"`
	Reason          string             `json:"reason,omitempty"`
	Payload         domain.PostPayload `json:"payload"`
	PostHash        string             `json:"post_hash"`
	Attempts        int                `json:"attempts"`
	NextAttemptAt   time.Time          `json:"next_attempt_at"`
	Error           string             `json:"error,omitempty"`
	ErrorClass      string             `json:"error_class,omitempty"`
	IntegrityFailed bool               `json:"integrity_failed,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:              t.ID,
		Type:            string(t.Type),
		Status:          string(t.Status),
		Platform:        string(t.Platform),
		ContentID:       t.ContentID,
		UID:             t.UID,
		Reason:          t.Reason,
		Payload:         t.Payload,
		PostHash:        t.PostHash,
		Attempts:        t.Attempts,
		NextAttemptAt:   t.NextAttemptAt,
		Error:           t.Error,
		ErrorClass:      string(t.ErrorClass),
		IntegrityFailed: t.IntegrityFailed,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// Post DTOs

// PostResponse — ответ с записью поста.
type PostResponse struct {
	Platform        string         `json:"platform"`
	PostHash        string         `json:"post_hash"`
	ContentID       string         `json:"content_id"`
	UID             string         `json:"uid"`
	TaskID          uuid.UUID      `json:"task_id"`
	Success         *bool          `json:"success,omitempty"`
	ExternalID      string         `json:"external_id,omitempty"`
	Simulated       bool           `json:"simulated,omitempty"`
	UsedVariant     string         `json:"used_variant,omitempty"`
	VariantIndex    *int           `json:"variant_index,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	NormalizedScore *float64       `json:"normalized_score,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// PostFromDomain конвертирует domain.PostRecord в PostResponse.
func PostFromDomain(p domain.PostRecord) PostResponse {
	return PostResponse{
		Platform:        string(p.Platform),
		PostHash:        p.PostHash,
		ContentID:       p.ContentID,
		UID:             p.UID,
		TaskID:          p.TaskID,
		Success:         p.Success,
		ExternalID:      p.ExternalID,
		Simulated:       p.Simulated,
		UsedVariant:     p.UsedVariant,
		VariantIndex:    p.VariantIndex,
		Metrics:         p.Metrics,
		NormalizedScore: p.NormalizedScore,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// Variant DTOs

// VariantResponse — ответ со статистикой варианта.
type VariantResponse struct {
	ContentID     string     `json:"content_id"`
	Platform      string     `json:"platform"`
	Value         string     `json:"value"`
	Posts         int        `json:"posts"`
	Clicks        int        `json:"clicks"`
	Impressions   int        `json:"impressions"`
	DecayedClicks float64    `json:"decayed_clicks"`
	DecayedPosts  float64    `json:"decayed_posts"`
	LastPostAt    *time.Time `json:"last_post_at,omitempty"`
	Anomaly       bool       `json:"anomaly"`
	Suppressed    bool       `json:"suppressed"`
	Quarantined   bool       `json:"quarantined"`
	QualityScore  *float64   `json:"quality_score,omitempty"`
}

// VariantFromDomain конвертирует domain.VariantStatsRow в VariantResponse.
func VariantFromDomain(v domain.VariantStatsRow) VariantResponse {
	return VariantResponse{
		ContentID:     v.ContentID,
		Platform:      string(v.Platform),
		Value:         v.Value,
		Posts:         v.Posts,
		Clicks:        v.Clicks,
		Impressions:   v.Impressions,
		DecayedClicks: v.DecayedClicks,
		DecayedPosts:  v.DecayedPosts,
		LastPostAt:    v.LastPostAt,
		Anomaly:       v.Anomaly,
		Suppressed:    v.Suppressed,
		Quarantined:   v.Quarantined,
		QualityScore:  v.QualityScore,
	}
}

// DeadLetter DTOs

// DeadLetterResponse — ответ с dead-letter записью.
type DeadLetterResponse struct {
	TaskID          uuid.UUID    `json:"task_id"`
	Body            TaskResponse `json:"body"`
	Error           string       `json:"error"`
	ErrorClass      string       `json:"error_class,omitempty"`
	IntegrityFailed bool         `json:"integrity_failed,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// DeadLetterFromDomain конвертирует domain.DeadLetterTask в DeadLetterResponse.
func DeadLetterFromDomain(dl domain.DeadLetterTask) DeadLetterResponse {
	return DeadLetterResponse{
		TaskID:          dl.TaskID,
		Body:            TaskFromDomain(dl.Body),
		Error:           dl.Error,
		ErrorClass:      string(dl.ErrorClass),
		IntegrityFailed: dl.IntegrityFailed,
		CreatedAt:       dl.CreatedAt,
	}
}
