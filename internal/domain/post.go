package domain

import (
	"time"

	"github.com/google/uuid"
)

// PostRecord — авторитетная запись о посте для пары (platform, postHash).
//
// Совмещает три роли: распределённая блокировка (create-if-absent),
// дедупликация (поиск недавнего успешного поста по hash) и аудит исхода.
//
// Инварианты:
//   - для (platform, postHash) существует максимум одна запись;
//   - Success == nil пока диспатч не разрешён; после Success=true запись
//     неизменяема в части владения (takeover невозможен).
type PostRecord struct {
	// Platform + PostHash — ключ записи.
	Platform Platform `json:"platform"`
	PostHash string   `json:"post_hash"`

	// ContentID / UID — контекст поста.
	ContentID string `json:"content_id"`
	UID       string `json:"uid"`

	// TaskID — текущий владелец блокировки.
	TaskID uuid.UUID `json:"task_id"`

	// Success — tri-state: nil пока pending, затем true/false.
	Success *bool `json:"success,omitempty"`

	// ExternalID — id, присвоенный платформой после публикации.
	ExternalID string `json:"external_id,omitempty"`

	// Outcome — санитизированный сырой результат диспатча.
	Outcome map[string]any `json:"outcome,omitempty"`

	// Simulated — диспатчер работал в режиме симуляции.
	Simulated bool `json:"simulated,omitempty"`

	// UsedVariant / VariantIndex — выбранный бандитом вариант.
	UsedVariant  string `json:"used_variant,omitempty"`
	VariantIndex *int   `json:"variant_index,omitempty"`

	// Metrics / NormalizedScore — заполняются внешним поллером метрик.
	Metrics         map[string]any `json:"metrics,omitempty"`
	NormalizedScore *float64       `json:"normalized_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPostLock создаёт pending-запись блокировки для (platform, postHash).
func NewPostLock(platform Platform, postHash, contentID, uid string, taskID uuid.UUID) *PostRecord {
	now := time.Now().UTC()
	return &PostRecord{
		Platform:  platform,
		PostHash:  postHash,
		ContentID: contentID,
		UID:       uid,
		TaskID:    taskID,
		Success:   nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Resolved возвращает true, если исход поста уже зафиксирован.
func (p *PostRecord) Resolved() bool {
	return p.Success != nil
}

// Succeeded возвращает true, если пост завершился успешно.
func (p *PostRecord) Succeeded() bool {
	return p.Success != nil && *p.Success
}

// Stale возвращает true, если блокировка не разрешена и не обновлялась
// дольше threshold (упавший воркер держит слот не дольше этого окна).
func (p *PostRecord) Stale(now time.Time, threshold time.Duration) bool {
	return !p.Resolved() && now.Sub(p.UpdatedAt) >= threshold
}
