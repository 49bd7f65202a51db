package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetterTask — неизменяемая копия задачи в момент терминальной ошибки.
// Хранится для ручного разбора, автоматически не переобрабатывается.
type DeadLetterTask struct {
	// TaskID — id исходной задачи.
	TaskID uuid.UUID `json:"task_id"`

	// Body — полный снимок задачи.
	Body Task `json:"body"`

	// Error / ErrorClass — причина попадания в dead letter.
	Error      string     `json:"error"`
	ErrorClass ErrorClass `json:"error_class"`

	// IntegrityFailed — задача попала сюда из-за невалидной подписи.
	IntegrityFailed bool `json:"integrity_failed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewDeadLetter снимает копию задачи для dead-letter хранилища.
func NewDeadLetter(t *Task) *DeadLetterTask {
	return &DeadLetterTask{
		TaskID:          t.ID,
		Body:            *t,
		Error:           t.Error,
		ErrorClass:      t.ErrorClass,
		IntegrityFailed: t.IntegrityFailed,
		CreatedAt:       time.Now().UTC(),
	}
}
