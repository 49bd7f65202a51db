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

// PostRepo — репозиторий platform_posts: блокировка, дедупликация и аудит.
type PostRepo struct {
	pool *pgxpool.Pool
}

// NewPostRepo создаёт новый PostRepo.
func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

const postColumns = `platform, post_hash, content_id, uid, task_id, success,
       external_id, outcome, simulated, used_variant, variant_index,
       metrics, normalized_score, created_at, updated_at`

// TakeoverResult — исход попытки takeover блокировки.
type TakeoverResult struct {
	// Taken — блокировка переназначена на новый taskId.
	Taken bool

	// Reason — причина отказа: not_exists, already_success, already_owned,
	// not_expired, lost_race.
	Reason string

	// Existing — состояние записи, наблюдавшееся в транзакции.
	Existing *domain.PostRecord
}

// TryCreateLock атомарно создаёт pending-запись для (platform, postHash).
//
// INSERT ... ON CONFLICT DO NOTHING — create-if-absent: ровно один из
// конкурирующих воркеров получает created=true. Для остальных возвращается
// существующая запись.
func (r *PostRepo) TryCreateLock(ctx context.Context, rec *domain.PostRecord) (bool, *domain.PostRecord, error) {
	query := `
		INSERT INTO platform_posts (platform, post_hash, content_id, uid, task_id,
		                            success, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6, $7)
		ON CONFLICT (platform, post_hash) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		rec.Platform,
		rec.PostHash,
		rec.ContentID,
		rec.UID,
		rec.TaskID,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return false, nil, fmt.Errorf("create lock: %w", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil, nil
	}

	existing, err := r.Get(ctx, rec.Platform, rec.PostHash)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

// Get возвращает запись по ключу (platform, postHash).
func (r *PostRepo) Get(ctx context.Context, platform domain.Platform, postHash string) (*domain.PostRecord, error) {
	query := `SELECT ` + postColumns + ` FROM platform_posts WHERE platform = $1 AND post_hash = $2`
	return scanPost(r.pool.QueryRow(ctx, query, platform, postHash))
}

// TryTakeover пытается переназначить протухшую блокировку на newTaskID.
//
// Staleness перепроверяется внутри транзакции под SELECT ... FOR UPDATE:
// между внешней проверкой и записью другой воркер мог забрать блокировку
// или запись могла разрешиться в success=true.
func (r *PostRepo) TryTakeover(ctx context.Context, platform domain.Platform, postHash string, newTaskID uuid.UUID, threshold time.Duration) (*TakeoverResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin takeover tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + postColumns + ` FROM platform_posts WHERE platform = $1 AND post_hash = $2 FOR UPDATE`
	rec, err := scanPost(tx.QueryRow(ctx, query, platform, postHash))
	if errors.Is(err, ErrNotFound) {
		return &TakeoverResult{Taken: false, Reason: "not_exists"}, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch {
	case rec.Succeeded():
		return &TakeoverResult{Taken: false, Reason: "already_success", Existing: rec}, nil
	case rec.TaskID == newTaskID:
		return &TakeoverResult{Taken: false, Reason: "already_owned", Existing: rec}, nil
	case !rec.Stale(now, threshold):
		return &TakeoverResult{Taken: false, Reason: "not_expired", Existing: rec}, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE platform_posts SET task_id = $3, updated_at = $4
		WHERE platform = $1 AND post_hash = $2
	`, platform, postHash, newTaskID, now)
	if err != nil {
		return nil, fmt.Errorf("takeover update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit takeover: %w", err)
	}
	return &TakeoverResult{Taken: true, Existing: rec}, nil
}

// FinalizeParams — поля, фиксируемые при разрешении поста.
type FinalizeParams struct {
	Success      bool
	ExternalID   string
	Outcome      map[string]any
	Simulated    bool
	UsedVariant  string
	VariantIndex *int
}

// Finalize фиксирует исход поста. После success=true запись неизменяема
// в части владения: никакой takeover её больше не тронет.
func (r *PostRepo) Finalize(ctx context.Context, platform domain.Platform, postHash string, p FinalizeParams) error {
	outcomeJSON, err := json.Marshal(sanitizeOutcome(p.Outcome))
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	query := `
		UPDATE platform_posts
		SET success = $3, external_id = $4, outcome = $5, simulated = $6,
		    used_variant = $7, variant_index = $8, updated_at = $9
		WHERE platform = $1 AND post_hash = $2 AND success IS NOT TRUE
	`
	result, err := r.pool.Exec(ctx, query,
		platform,
		postHash,
		p.Success,
		nullString(p.ExternalID),
		outcomeJSON,
		p.Simulated,
		nullString(p.UsedVariant),
		p.VariantIndex,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("finalize post: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// HasRecentSuccess проверяет наличие успешного поста с этим hash,
// созданного не раньше since (окно дедупликации Enqueue).
func (r *PostRepo) HasRecentSuccess(ctx context.Context, postHash string, since time.Time) (*domain.PostRecord, error) {
	query := `
		SELECT ` + postColumns + `
		FROM platform_posts
		WHERE post_hash = $1 AND success = TRUE AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	rec, err := scanPost(r.pool.QueryRow(ctx, query, postHash, since))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecentByContent возвращает последние записи по контенту
// (для engagement-составляющей приоритета).
func (r *PostRepo) RecentByContent(ctx context.Context, contentID string, limit int) ([]domain.PostRecord, error) {
	query := `
		SELECT ` + postColumns + `
		FROM platform_posts
		WHERE content_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts by content: %w", err)
	}
	defer rows.Close()

	var recs []domain.PostRecord
	for rows.Next() {
		rec, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// CountByContentPlatform возвращает число записей по паре content×platform
// (rotation-стратегия выбора варианта).
func (r *PostRepo) CountByContentPlatform(ctx context.Context, contentID string, platform domain.Platform) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM platform_posts WHERE content_id = $1 AND platform = $2
	`, contentID, platform).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// --- Helpers ---

// sanitizeOutcome обрезает слишком длинные сырые ответы платформ.
func sanitizeOutcome(outcome map[string]any) map[string]any {
	if outcome == nil {
		return nil
	}
	clone := make(map[string]any, len(outcome))
	for k, v := range outcome {
		clone[k] = v
	}
	if raw, ok := clone["raw"].(string); ok && len(raw) > 2000 {
		clone["raw"] = raw[:2000] + "…"
	}
	return clone
}

func scanPost(row pgx.Row) (*domain.PostRecord, error) {
	var rec domain.PostRecord
	var externalID, usedVariant *string
	var outcomeJSON, metricsJSON []byte

	err := row.Scan(
		&rec.Platform,
		&rec.PostHash,
		&rec.ContentID,
		&rec.UID,
		&rec.TaskID,
		&rec.Success,
		&externalID,
		&outcomeJSON,
		&rec.Simulated,
		&usedVariant,
		&rec.VariantIndex,
		&metricsJSON,
		&rec.NormalizedScore,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}

	if externalID != nil {
		rec.ExternalID = *externalID
	}
	if usedVariant != nil {
		rec.UsedVariant = *usedVariant
	}
	if outcomeJSON != nil {
		if err := json.Unmarshal(outcomeJSON, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
	}
	if metricsJSON != nil {
		if err := json.Unmarshal(metricsJSON, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}

	return &rec, nil
}
