package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Promotor/internal/domain"
)

// DeadLetterRepo — хранилище терминально провалившихся задач.
// Записи только добавляются, автоматической переобработки нет.
type DeadLetterRepo struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepo создаёт новый DeadLetterRepo.
func NewDeadLetterRepo(pool *pgxpool.Pool) *DeadLetterRepo {
	return &DeadLetterRepo{pool: pool}
}

// Insert сохраняет копию задачи в dead_letter_tasks.
func (r *DeadLetterRepo) Insert(ctx context.Context, dl *domain.DeadLetterTask) error {
	bodyJSON, err := json.Marshal(dl.Body)
	if err != nil {
		return fmt.Errorf("marshal dead letter body: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO dead_letter_tasks (task_id, body, error, error_class, integrity_failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (task_id) DO NOTHING
	`,
		dl.TaskID,
		bodyJSON,
		dl.Error,
		nullString(string(dl.ErrorClass)),
		dl.IntegrityFailed,
		dl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// List возвращает последние dead-letter записи для ручного разбора.
func (r *DeadLetterRepo) List(ctx context.Context, limit int) ([]domain.DeadLetterTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT task_id, body, error, error_class, integrity_failed, created_at
		FROM dead_letter_tasks
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var items []domain.DeadLetterTask
	for rows.Next() {
		var dl domain.DeadLetterTask
		var bodyJSON []byte
		var errorClass *string
		if err := rows.Scan(&dl.TaskID, &bodyJSON, &dl.Error, &errorClass, &dl.IntegrityFailed, &dl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if err := json.Unmarshal(bodyJSON, &dl.Body); err != nil {
			return nil, fmt.Errorf("unmarshal dead letter body: %w", err)
		}
		if errorClass != nil {
			dl.ErrorClass = domain.ErrorClass(*errorClass)
		}
		items = append(items, dl)
	}
	return items, rows.Err()
}

// Get возвращает dead-letter запись по id исходной задачи.
func (r *DeadLetterRepo) Get(ctx context.Context, taskID uuid.UUID) (*domain.DeadLetterTask, error) {
	var dl domain.DeadLetterTask
	var bodyJSON []byte
	var errorClass *string
	err := r.pool.QueryRow(ctx, `
		SELECT task_id, body, error, error_class, integrity_failed, created_at
		FROM dead_letter_tasks WHERE task_id = $1
	`, taskID).Scan(&dl.TaskID, &bodyJSON, &dl.Error, &errorClass, &dl.IntegrityFailed, &dl.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	if err := json.Unmarshal(bodyJSON, &dl.Body); err != nil {
		return nil, fmt.Errorf("unmarshal dead letter body: %w", err)
	}
	if errorClass != nil {
		dl.ErrorClass = domain.ErrorClass(*errorClass)
	}
	return &dl, nil
}
