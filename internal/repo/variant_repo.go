package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Promotor/internal/domain"
)

// VariantRepo — репозиторий variant_stats (строка на content×platform×variant).
type VariantRepo struct {
	pool *pgxpool.Pool
}

// NewVariantRepo создаёт новый VariantRepo.
func NewVariantRepo(pool *pgxpool.Pool) *VariantRepo {
	return &VariantRepo{pool: pool}
}

const variantColumns = `content_id, platform, value, posts, clicks, impressions,
       decayed_clicks, decayed_posts, last_decay_at, last_post_at,
       anomaly, suppressed, suppressed_at, quarantined, quality_score, updated_at`

// Rows возвращает все строки статистики для пары content×platform.
func (r *VariantRepo) Rows(ctx context.Context, contentID string, platform domain.Platform) ([]domain.VariantStatsRow, error) {
	query := `SELECT ` + variantColumns + ` FROM variant_stats WHERE content_id = $1 AND platform = $2`
	rows, err := r.pool.Query(ctx, query, contentID, platform)
	if err != nil {
		return nil, fmt.Errorf("list variant stats: %w", err)
	}
	defer rows.Close()

	var result []domain.VariantStatsRow
	for rows.Next() {
		row, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	return result, rows.Err()
}

// Mutate выполняет транзакционный read-modify-write строк пары
// content×platform: строки берутся под FOR UPDATE, отсутствующие для values
// создаются пустыми, fn мутирует их, результат апсертится.
//
// Decay/anomaly/suppression-логика живёт у вызывающего (internal/bandit) —
// репозиторий отвечает только за атомарность.
func (r *VariantRepo) Mutate(ctx context.Context, contentID string, platform domain.Platform, values []string, fn func(rows []*domain.VariantStatsRow) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin variant tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + variantColumns + ` FROM variant_stats WHERE content_id = $1 AND platform = $2 FOR UPDATE`
	existing, err := tx.Query(ctx, query, contentID, platform)
	if err != nil {
		return fmt.Errorf("lock variant stats: %w", err)
	}

	byValue := make(map[string]*domain.VariantStatsRow)
	var rows []*domain.VariantStatsRow
	for existing.Next() {
		row, err := scanVariant(existing)
		if err != nil {
			existing.Close()
			return err
		}
		byValue[row.Value] = row
		rows = append(rows, row)
	}
	existing.Close()
	if err := existing.Err(); err != nil {
		return fmt.Errorf("iterate variant stats: %w", err)
	}

	for _, v := range values {
		if _, ok := byValue[v]; !ok {
			row := domain.NewVariantStatsRow(contentID, platform, v)
			byValue[v] = row
			rows = append(rows, row)
		}
	}

	if err := fn(rows); err != nil {
		return err
	}

	upsert := `
		INSERT INTO variant_stats (content_id, platform, value, posts, clicks, impressions,
		                           decayed_clicks, decayed_posts, last_decay_at, last_post_at,
		                           anomaly, suppressed, suppressed_at, quarantined,
		                           quality_score, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (content_id, platform, value) DO UPDATE SET
			posts = EXCLUDED.posts, clicks = EXCLUDED.clicks,
			impressions = EXCLUDED.impressions,
			decayed_clicks = EXCLUDED.decayed_clicks,
			decayed_posts = EXCLUDED.decayed_posts,
			last_decay_at = EXCLUDED.last_decay_at,
			last_post_at = EXCLUDED.last_post_at,
			anomaly = EXCLUDED.anomaly, suppressed = EXCLUDED.suppressed,
			suppressed_at = EXCLUDED.suppressed_at,
			quarantined = EXCLUDED.quarantined,
			quality_score = EXCLUDED.quality_score,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now().UTC()
	for _, row := range rows {
		row.UpdatedAt = now
		_, err := tx.Exec(ctx, upsert,
			row.ContentID, row.Platform, row.Value,
			row.Posts, row.Clicks, row.Impressions,
			row.DecayedClicks, row.DecayedPosts, row.LastDecayAt, row.LastPostAt,
			row.Anomaly, row.Suppressed, row.SuppressedAt, row.Quarantined,
			row.QualityScore, row.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert variant stats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit variant tx: %w", err)
	}
	return nil
}

// ReactivateExpired снимает подавление с вариантов, чей suppressed_at
// старше cutoff. Возвращает количество реактивированных строк.
func (r *VariantRepo) ReactivateExpired(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE variant_stats
		SET suppressed = FALSE, suppressed_at = NULL, updated_at = $2
		WHERE suppressed = TRUE AND suppressed_at <= $1
	`, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reactivate variants: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func scanVariant(row pgx.Row) (*domain.VariantStatsRow, error) {
	var v domain.VariantStatsRow
	err := row.Scan(
		&v.ContentID,
		&v.Platform,
		&v.Value,
		&v.Posts,
		&v.Clicks,
		&v.Impressions,
		&v.DecayedClicks,
		&v.DecayedPosts,
		&v.LastDecayAt,
		&v.LastPostAt,
		&v.Anomaly,
		&v.Suppressed,
		&v.SuppressedAt,
		&v.Quarantined,
		&v.QualityScore,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan variant stats: %w", err)
	}
	return &v, nil
}
