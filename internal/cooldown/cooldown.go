// Package cooldown — трекер rate-limit окон платформ поверх Redis.
//
// Трекер best-effort: отсутствие Redis или его ошибки трактуются как
// "cooldown нет". Корректность очереди от него не зависит, он лишь
// снижает количество заведомо обречённых диспатчей в 429-окне.
package cooldown

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shaiso/Promotor/internal/domain"
)

const keyPrefix = "promo:cooldown:"

// Tracker хранит момент окончания cooldown по платформам.
type Tracker struct {
	client *redis.Client
	logger *slog.Logger
}

// New создаёт Tracker. client может быть nil — тогда все операции no-op.
func New(client *redis.Client, logger *slog.Logger) *Tracker {
	return &Tracker{client: client, logger: logger}
}

// NewClient подключается к Redis по REDIS_URL. Возвращает nil (без ошибки),
// если адрес не задан или Redis недоступен: деплой без Redis легален.
func NewClient(ctx context.Context, logger *slog.Logger) *redis.Client {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("invalid redis url, cooldown tracker disabled", "error", err)
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, cooldown tracker disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Note фиксирует rate-limit окно для платформы: до now+window новые
// диспатчи на неё откладываются.
func (t *Tracker) Note(ctx context.Context, platform domain.Platform, window time.Duration) {
	if t.client == nil {
		return
	}
	until := time.Now().Add(window).UnixMilli()
	err := t.client.Set(ctx, keyPrefix+string(platform), strconv.FormatInt(until, 10), window).Err()
	if err != nil {
		t.logger.Warn("failed to store cooldown", "platform", platform, "error", err)
	}
}

// Until возвращает момент окончания cooldown платформы и true, если окно
// ещё активно. Любая ошибка чтения трактуется как отсутствие окна.
func (t *Tracker) Until(ctx context.Context, platform domain.Platform) (time.Time, bool) {
	if t.client == nil {
		return time.Time{}, false
	}
	raw, err := t.client.Get(ctx, keyPrefix+string(platform)).Result()
	if err != nil {
		if err != redis.Nil {
			t.logger.Warn("failed to read cooldown", "platform", platform, "error", err)
		}
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	until := time.UnixMilli(ms)
	if time.Now().After(until) {
		return time.Time{}, false
	}
	return until, true
}
