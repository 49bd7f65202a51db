package domain

// TaskStatus — статус выполнения задачи продвижения.
//
// Жизненный цикл:
//
//	queued → processing → completed
//	                    ↘ queued (retryable ошибка, attempts++)
//	                    ↘ failed (неретраябельная ошибка или исчерпаны попытки)
//	                    ↘ skipped (дубликат обнаружен на этапе блокировки)
//	queued → skipped (дубликат обнаружен при Enqueue)
type TaskStatus string

const (
	// TaskStatusQueued — задача в очереди, ожидает воркера.
	TaskStatusQueued TaskStatus = "queued"

	// TaskStatusProcessing — задача взята воркером.
	TaskStatusProcessing TaskStatus = "processing"

	// TaskStatusCompleted — диспатч успешно выполнен.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed — терминальная ошибка (после всех retry).
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusSkipped — задача пропущена как дубликат.
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода по state machine.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusProcessing || next == TaskStatusSkipped
	case TaskStatusProcessing:
		return next == TaskStatusCompleted || next == TaskStatusFailed ||
			next == TaskStatusQueued || next == TaskStatusSkipped
	default:
		return false
	}
}

// TaskType — тип задачи. Все типы делят одно хранилище и жизненный цикл,
// но полный путь блокировки/бандита проходит только platform_post.
type TaskType string

const (
	// TaskTypePlatformPost — пост на внешнюю платформу.
	TaskTypePlatformPost TaskType = "platform_post"

	// TaskTypeMediaTransform — перекодирование медиа.
	TaskTypeMediaTransform TaskType = "media_transform"

	// TaskTypeUpload — загрузка файла.
	TaskTypeUpload TaskType = "upload"
)

// SkipReason — причина пропуска задачи. Это ожидаемые бизнес-исходы,
// а не ошибки: Enqueue и ProcessNext возвращают их как значения.
type SkipReason string

const (
	// SkipDuplicateRecent — успешный пост с тем же hash уже есть в окне дедупликации.
	SkipDuplicateRecent SkipReason = "duplicate_recent_post"

	// SkipDuplicatePending — задача с теми же (platform, contentId, reason) уже в очереди.
	SkipDuplicatePending SkipReason = "duplicate_pending"

	// SkipDisabledByFlag — платформа выключена feature-флагом (uid не в canary).
	SkipDisabledByFlag SkipReason = "disabled_by_feature_flag"

	// SkipQuotaExceeded — месячная квота задач плана исчерпана.
	SkipQuotaExceeded SkipReason = "quota_exceeded"

	// SkipRateLimitCooldown — платформа в окне cooldown, задача отложена.
	SkipRateLimitCooldown SkipReason = "rate_limit_cooldown"
)
