package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Имена счётчиков promo_counters. Пер-типовые и пер-платформенные имена
// строятся конкатенацией (task_completed_platform_post и т.п.).
const (
	CounterTasksEnqueued       = "tasks_enqueued"
	CounterTaskCompletedPrefix = "task_completed_"
	CounterTaskFailedPrefix    = "task_failed_"
	CounterDuplicateSkips      = "duplicate_skips"
	CounterTakeoverAttempt     = "lock_takeover_attempt"
	CounterTakeoverSuccess     = "lock_takeover_success"
	CounterTakeoverFailure     = "lock_takeover_failure"
	CounterRateLimitPrefix     = "rate_limit_events_"
	CounterTasksDeadLettered   = "tasks_dead_lettered"
	CounterFastFollows         = "fast_follows"
)

// CounterRepo — простые персистентные счётчики (promo_counters).
type CounterRepo struct {
	pool *pgxpool.Pool
}

// NewCounterRepo создаёт новый CounterRepo.
func NewCounterRepo(pool *pgxpool.Pool) *CounterRepo {
	return &CounterRepo{pool: pool}
}

// Incr атомарно увеличивает счётчик на 1, создавая его при отсутствии.
func (r *CounterRepo) Incr(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO promo_counters (name, value, updated_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (name) DO UPDATE
		SET value = promo_counters.value + 1, updated_at = EXCLUDED.updated_at
	`, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment counter %s: %w", name, err)
	}
	return nil
}

// All возвращает все счётчики в виде карты name → value.
func (r *CounterRepo) All(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, value FROM promo_counters`)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	counters := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters[name] = value
	}
	return counters, rows.Err()
}
