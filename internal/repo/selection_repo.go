package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Promotor/internal/domain"
)

// SelectionOutcome — зафиксированный исход одного выбора варианта.
// Reward-прокси пишутся для внешнего тюнера, сам движок их не читает.
type SelectionOutcome struct {
	ContentID     string
	Platform      domain.Platform
	Variant       string
	Strategy      string
	Score         float64
	RewardCTR     float64
	RewardQuality float64
	RewardReach   float64
	Penalty       float64
	ColdStart     bool
	SelectedAt    time.Time
}

// SelectionRepo — журнал bandit_selection_metrics.
type SelectionRepo struct {
	pool *pgxpool.Pool
}

// NewSelectionRepo создаёт новый SelectionRepo.
func NewSelectionRepo(pool *pgxpool.Pool) *SelectionRepo {
	return &SelectionRepo{pool: pool}
}

// Record сохраняет исход выбора. Вызывается best-effort:
// ошибка записи не должна ронять обработку задачи.
func (r *SelectionRepo) Record(ctx context.Context, o SelectionOutcome) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bandit_selection_metrics
			(id, content_id, platform, variant, strategy, score,
			 reward_ctr, reward_quality, reward_reach, penalty, cold_start, selected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.New(),
		o.ContentID,
		o.Platform,
		o.Variant,
		o.Strategy,
		o.Score,
		o.RewardCTR,
		o.RewardQuality,
		o.RewardReach,
		o.Penalty,
		o.ColdStart,
		o.SelectedAt,
	)
	if err != nil {
		return fmt.Errorf("record selection: %w", err)
	}
	return nil
}
