package worker

import "errors"

// Ошибки воркера.
var (
	// ErrTaskNotFound — задача не найдена в БД.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotQueued — задача не в статусе queued (увёл другой воркер).
	ErrTaskNotQueued = errors.New("task is not in queued status")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
