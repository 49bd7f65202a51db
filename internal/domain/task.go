package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition — попытка перевода задачи в недопустимый статус.
var ErrInvalidTransition = errors.New("invalid status transition")

// PostPayload — полезная нагрузка задачи platform_post.
//
// Очередь трактует payload как непрозрачный для платформ объект, но несколько
// полей читает сама: Variants — для выбора варианта, Message/Link/Media —
// для канонического подмножества postHash (волатильные поля вроде
// timestamp'ов в hash не входят, поэтому логически одинаковые посты
// хешируются одинаково).
type PostPayload struct {
	// Message — текст поста. При выборе варианта заменяется выбранным.
	Message string `json:"message,omitempty"`

	// Link — ссылка на лендинг (или shortlink после обогащения).
	Link string `json:"link,omitempty"`

	// Media — URL медиафайла.
	Media string `json:"media,omitempty"`

	// Variants — альтернативные тексты для bandit/rotation выбора.
	Variants []string `json:"variants,omitempty"`

	// Shortlink — сгенерированная короткая ссылка (обогащение, не хешируется).
	Shortlink string `json:"shortlink,omitempty"`

	// FastFollow — задача создана адаптивным fast-follow планировщиком.
	FastFollow bool `json:"fastFollow,omitempty"`

	// RevenueEligible — результат гейта минимального количества контента.
	// nil = проверка не удалась (fail open).
	RevenueEligible *bool `json:"__revenueEligible,omitempty"`
}

// Task — единица работы очереди продвижения.
//
// Создаётся через Enqueue, мутируется только воркером, держащим её
// в processing, терминальна в completed/failed/skipped. Физически
// задачи ядром не удаляются.
type Task struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// Type — тип задачи (platform_post, media_transform, upload).
	Type TaskType `json:"type"`

	// Status — текущий статус по state machine.
	Status TaskStatus `json:"status"`

	// Platform — целевая платформа (только для platform_post).
	Platform Platform `json:"platform"`

	// ContentID — id продвигаемого контента.
	ContentID string `json:"content_id"`

	// UID — пользователь, от имени которого идёт продвижение.
	UID string `json:"uid"`

	// Reason — свободный тег причины (approved, fast_follow, manual...).
	Reason string `json:"reason"`

	// Payload — полезная нагрузка.
	Payload PostPayload `json:"payload"`

	// PostHash — детерминированный ключ идемпотентности.
	// Инвариант: неизменен после создания.
	PostHash string `json:"post_hash"`

	// Attempts — количество попыток диспатча. Монотонно не убывает.
	Attempts int `json:"attempts"`

	// NextAttemptAt — задача не выбирается, пока now < NextAttemptAt.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// Error — текст последней ошибки.
	Error string `json:"error,omitempty"`

	// ErrorClass — классификация последней ошибки.
	ErrorClass ErrorClass `json:"error_class,omitempty"`

	// IntegrityFailed — подпись не прошла проверку перед обработкой.
	IntegrityFailed bool `json:"integrity_failed,omitempty"`

	// Signature — HMAC подпись тела задачи (защита от порчи/подмены).
	Signature string `json:"signature,omitempty"`

	// CreatedAt / UpdatedAt — таймстемпы записи.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPlatformPostTask создаёт задачу platform_post со всеми инвариантами:
// attempts=0, nextAttemptAt=now, статус queued.
func NewPlatformPostTask(platform Platform, contentID, uid, reason string, payload PostPayload, postHash string) (*Task, error) {
	if contentID == "" || uid == "" {
		return nil, fmt.Errorf("contentID and uid required")
	}
	if postHash == "" {
		return nil, fmt.Errorf("postHash required")
	}
	now := time.Now().UTC()
	return &Task{
		ID:            uuid.New(),
		Type:          TaskTypePlatformPost,
		Status:        TaskStatusQueued,
		Platform:      platform,
		ContentID:     contentID,
		UID:           uid,
		Reason:        reason,
		Payload:       payload,
		PostHash:      postHash,
		Attempts:      0,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SignableBody возвращает канонические байты задачи для HMAC-подписи.
// В тело входят только неизменяемые после создания поля: mutable-поля
// (status, attempts, error) подпись инвалидировать не должны.
func (t *Task) SignableBody() []byte {
	return []byte(string(t.Type) + "|" + string(t.Platform) + "|" +
		t.ContentID + "|" + t.UID + "|" + t.Reason + "|" + t.PostHash + "|" +
		t.Payload.Message + "|" + t.Payload.Link + "|" + t.Payload.Media)
}

// transition переводит задачу в новый статус с проверкой state machine.
func (t *Task) transition(next TaskStatus) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkProcessing переводит задачу в processing.
func (t *Task) MarkProcessing() error {
	return t.transition(TaskStatusProcessing)
}

// MarkCompleted переводит задачу в completed.
func (t *Task) MarkCompleted() error {
	return t.transition(TaskStatusCompleted)
}

// MarkSkipped переводит задачу в skipped с причиной.
func (t *Task) MarkSkipped(reason SkipReason) error {
	if err := t.transition(TaskStatusSkipped); err != nil {
		return err
	}
	t.Error = string(reason)
	return nil
}

// MarkRetry возвращает задачу в queued после retryable ошибки.
// Инвариант: attempts строго растёт, nextAttemptAt сдвигается в будущее.
func (t *Task) MarkRetry(errMsg string, class ErrorClass, nextAttemptAt time.Time) error {
	if err := t.transition(TaskStatusQueued); err != nil {
		return err
	}
	t.Attempts++
	t.Error = errMsg
	t.ErrorClass = class
	t.NextAttemptAt = nextAttemptAt
	return nil
}

// MarkFailed переводит задачу в терминальный failed.
func (t *Task) MarkFailed(errMsg string, class ErrorClass) error {
	if err := t.transition(TaskStatusFailed); err != nil {
		return err
	}
	t.Attempts++
	t.Error = errMsg
	t.ErrorClass = class
	return nil
}

// Defer возвращает задачу в queued без учёта попытки (rate-limit cooldown
// платформы — это не ошибка самой задачи).
func (t *Task) Defer(until time.Time) error {
	if err := t.transition(TaskStatusQueued); err != nil {
		return err
	}
	t.NextAttemptAt = until
	return nil
}

// Eligible возвращает true, если задача готова к выбору.
func (t *Task) Eligible(now time.Time) bool {
	return t.Status == TaskStatusQueued && !t.NextAttemptAt.After(now)
}

// CanRetry проверяет, остались ли попытки.
func (t *Task) CanRetry(maxAttempts int) bool {
	return t.Attempts+1 < maxAttempts
}
