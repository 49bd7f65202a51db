package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Promotor/internal/domain"
)

// TaskRepo — репозиторий для работы с promotion_tasks.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `id, type, status, platform, content_id, uid, reason, payload,
       post_hash, attempts, next_attempt_at, error, error_class,
       integrity_failed, signature, created_at, updated_at`

// Create создаёт новую задачу.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	payloadJSON, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO promotion_tasks (id, type, status, platform, content_id, uid, reason,
		                             payload, post_hash, attempts, next_attempt_at,
		                             signature, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.Type,
		task.Status,
		task.Platform,
		task.ContentID,
		task.UID,
		task.Reason,
		payloadJSON,
		task.PostHash,
		task.Attempts,
		task.NextAttemptAt,
		nullString(task.Signature),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID возвращает задачу по ID.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM promotion_tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// Update обновляет мутабельные поля задачи.
func (r *TaskRepo) Update(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE promotion_tasks
		SET status = $2, attempts = $3, next_attempt_at = $4, error = $5,
		    error_class = $6, integrity_failed = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		task.Attempts,
		task.NextAttemptAt,
		nullString(task.Error),
		nullString(string(task.ErrorClass)),
		task.IntegrityFailed,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimProcessing атомарно переводит задачу queued → processing.
// Возвращает ErrInvalidState, если задачу уже увёл другой воркер.
func (r *TaskRepo) ClaimProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE promotion_tasks
		SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status = 'queued'
	`
	result, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListQueued возвращает batch самых старых queued задач данного типа.
// Фильтрация по next_attempt_at делается на стороне воркера: в batch
// попадают и ещё не готовые задачи (как в исходной FIFO-выборке).
func (r *TaskRepo) ListQueued(ctx context.Context, taskType domain.TaskType, limit int) ([]domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM promotion_tasks
		WHERE type = $1 AND status = 'queued'
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, taskType, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// TaskFilter — фильтр для List.
type TaskFilter struct {
	Status    domain.TaskStatus
	Platform  domain.Platform
	ContentID string
	UID       string
	Limit     int
	Offset    int
}

// List возвращает задачи по фильтру, новые первыми.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM promotion_tasks WHERE 1=1`
	var args []any
	argNum := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	if filter.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argNum)
		args = append(args, filter.Platform)
		argNum++
	}
	if filter.ContentID != "" {
		query += fmt.Sprintf(" AND content_id = $%d", argNum)
		args = append(args, filter.ContentID)
		argNum++
	}
	if filter.UID != "" {
		query += fmt.Sprintf(" AND uid = $%d", argNum)
		args = append(args, filter.UID)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// HasPending проверяет наличие живой (queued/processing) задачи
// с теми же (platform, contentId, reason).
func (r *TaskRepo) HasPending(ctx context.Context, platform domain.Platform, contentID, reason string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM promotion_tasks
			WHERE type = 'platform_post' AND platform = $1 AND content_id = $2
			  AND reason = $3 AND status IN ('queued', 'processing')
		)
	`, platform, contentID, reason).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending task: %w", err)
	}
	return exists, nil
}

// RequeueStuck возвращает в очередь задачи, застрявшие в processing
// дольше threshold (воркер умер, не успев разрешить задачу).
// Возвращает количество возвращённых задач.
func (r *TaskRepo) RequeueStuck(ctx context.Context, before time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE promotion_tasks
		SET status = 'queued', updated_at = $2
		WHERE status = 'processing' AND updated_at <= $1
	`, before, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("requeue stuck tasks: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// CountSince возвращает количество platform_post задач пользователя,
// созданных начиная с since (для месячной квоты).
func (r *TaskRepo) CountSince(ctx context.Context, uid string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM promotion_tasks
		WHERE uid = $1 AND type = 'platform_post' AND created_at >= $2
	`, uid, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// --- Helpers ---

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var payloadJSON []byte
	var taskError, errorClass, signature *string

	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.Status,
		&task.Platform,
		&task.ContentID,
		&task.UID,
		&task.Reason,
		&payloadJSON,
		&task.PostHash,
		&task.Attempts,
		&task.NextAttemptAt,
		&taskError,
		&errorClass,
		&task.IntegrityFailed,
		&signature,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &task.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if taskError != nil {
		task.Error = *taskError
	}
	if errorClass != nil {
		task.ErrorClass = domain.ErrorClass(*errorClass)
	}
	if signature != nil {
		task.Signature = *signature
	}

	return &task, nil
}
