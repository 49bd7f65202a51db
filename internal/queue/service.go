// Package queue реализует идемпотентную постановку задач продвижения.
//
// Enqueue никогда не возвращает ошибку для ожидаемых бизнес-условий
// (квота, дубликаты, фичефлаги) — они приходят как структурный
// {Skipped, Reason}. Ошибка означает только отказ инфраструктуры.
package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Promotor/internal/domain"
	"github.com/shaiso/Promotor/internal/repo"
	"github.com/shaiso/Promotor/internal/signer"
	"github.com/shaiso/Promotor/internal/telemetry"
)

// DefaultDedupWindow — окно, внутри которого повторный Enqueue того же
// поста считается дубликатом.
const DefaultDedupWindow = 24 * time.Hour

// taskStore — операции очереди над promotion_tasks.
type taskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	HasPending(ctx context.Context, platform domain.Platform, contentID, reason string) (bool, error)
}

// postStore — поиск успешных постов для дедупликации.
type postStore interface {
	HasRecentSuccess(ctx context.Context, postHash string, since time.Time) (*domain.PostRecord, error)
}

// counterStore — персистентные счётчики (best-effort).
type counterStore interface {
	Incr(ctx context.Context, name string) error
}

// wakePublisher — событие task.enqueued для низколатентного pickup'а.
type wakePublisher interface {
	PublishTaskEnqueued(ctx context.Context, taskID uuid.UUID, platform string) error
}

// EnqueueRequest — запрос на постановку задачи platform_post.
type EnqueueRequest struct {
	Platform  domain.Platform
	ContentID string
	UID       string
	Reason    string
	Payload   domain.PostPayload

	// SkipIfDuplicate включает дедупликацию по postHash.
	SkipIfDuplicate bool

	// ForceRepost отключает дедупликацию даже при SkipIfDuplicate.
	ForceRepost bool

	// Delay откладывает первую попытку (fast-follow).
	Delay time.Duration
}

// EnqueueResult — структурный исход Enqueue.
type EnqueueResult struct {
	// Task — созданная задача (nil при skip).
	Task *domain.Task

	// Skipped/Reason — задача не создана по ожидаемой бизнес-причине.
	Skipped bool
	Reason  domain.SkipReason
}

// Service — сервис постановки задач.
type Service struct {
	tasks     taskStore
	posts     postStore
	counters  counterStore
	gates     *FeatureGates
	signer    *signer.Signer
	publisher wakePublisher
	logger    *slog.Logger

	// DedupWindow — окно дедупликации успешных постов.
	DedupWindow time.Duration
}

// NewService создаёт сервис. publisher и counters могут быть nil.
func NewService(tasks taskStore, posts postStore, counters counterStore, gates *FeatureGates, sig *signer.Signer, publisher wakePublisher, logger *slog.Logger) *Service {
	return &Service{
		tasks:       tasks,
		posts:       posts,
		counters:    counters,
		gates:       gates,
		signer:      sig,
		publisher:   publisher,
		logger:      logger,
		DedupWindow: DefaultDedupWindow,
	}
}

// Enqueue ставит задачу platform_post в очередь.
//
// Порядок проверок фиксирован: гейты → дедуп по hash → pending-дубликат →
// создание. Гейты fail open; дедуп-проверки при ошибке чтения тоже
// пропускают задачу дальше — лучше лишний пост, чем потерянный.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	log := s.logger.With("platform", req.Platform, "content_id", req.ContentID, "reason", req.Reason)

	// 1. Фичефлаг платформы + canary.
	if !s.gates.PlatformAllowed(req.Platform, req.UID) {
		log.Info("enqueue skipped", "skip_reason", domain.SkipDisabledByFlag)
		return &EnqueueResult{Skipped: true, Reason: domain.SkipDisabledByFlag}, nil
	}

	// 2. Месячная квота по тарифу.
	if s.gates.QuotaExceeded(ctx, req.UID) {
		log.Info("enqueue skipped", "skip_reason", domain.SkipQuotaExceeded)
		return &EnqueueResult{Skipped: true, Reason: domain.SkipQuotaExceeded}, nil
	}

	// 3. Revenue-eligibility: не блокирует, только помечает payload.
	req.Payload.RevenueEligible = s.gates.RevenueEligible(ctx, req.ContentID)

	postHash := PostHash(req.Platform, req.ContentID, req.Reason, req.Payload)

	// 4. Дедуп: успешный пост с этим hash внутри окна.
	if req.SkipIfDuplicate && !req.ForceRepost {
		existing, err := s.posts.HasRecentSuccess(ctx, postHash, time.Now().UTC().Add(-s.DedupWindow))
		if err != nil {
			log.Warn("dedup lookup failed, proceeding", "error", err)
		} else if existing != nil {
			s.incr(ctx, repo.CounterDuplicateSkips)
			log.Info("enqueue skipped", "skip_reason", domain.SkipDuplicateRecent)
			return &EnqueueResult{Skipped: true, Reason: domain.SkipDuplicateRecent}, nil
		}
	}

	// 5. Живая задача с тем же (platform, contentId, reason).
	pending, err := s.tasks.HasPending(ctx, req.Platform, req.ContentID, req.Reason)
	if err != nil {
		log.Warn("pending lookup failed, proceeding", "error", err)
	} else if pending {
		s.incr(ctx, repo.CounterDuplicateSkips)
		log.Info("enqueue skipped", "skip_reason", domain.SkipDuplicatePending)
		return &EnqueueResult{Skipped: true, Reason: domain.SkipDuplicatePending}, nil
	}

	// 6. Создание подписанной задачи.
	task, err := domain.NewPlatformPostTask(req.Platform, req.ContentID, req.UID, req.Reason, req.Payload, postHash)
	if err != nil {
		return nil, err
	}
	if req.Delay > 0 {
		task.NextAttemptAt = task.NextAttemptAt.Add(req.Delay)
	}
	task.Signature = s.signer.Sign(task.SignableBody())

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	s.incr(ctx, repo.CounterTasksEnqueued)
	telemetry.TasksEnqueued.WithLabelValues(string(task.Platform)).Inc()

	// 7. Wake-up событие. Best-effort: polling подберёт и без него.
	if s.publisher != nil {
		if err := s.publisher.PublishTaskEnqueued(ctx, task.ID, string(task.Platform)); err != nil {
			log.Warn("failed to publish task.enqueued", "task_id", task.ID, "error", err)
		}
	}

	log.Info("task enqueued", "task_id", task.ID, "post_hash", postHash)
	return &EnqueueResult{Task: task}, nil
}

// incr инкрементирует счётчик best-effort.
func (s *Service) incr(ctx context.Context, name string) {
	if s.counters == nil {
		return
	}
	if err := s.counters.Incr(ctx, name); err != nil {
		s.logger.Warn("failed to increment counter", "counter", name, "error", err)
	}
}

// PostHash — детерминированный ключ идемпотентности поста.
//
// В hash входит каноническое подмножество payload (message, link, media):
// волатильные поля вроде таймстемпов или подписи не участвуют, поэтому
// логически одинаковые посты всегда дают один hash.
func PostHash(platform domain.Platform, contentID, reason string, payload domain.PostPayload) string {
	h := sha256.New()
	h.Write([]byte(string(platform) + "|" + contentID + "|" + reason + "|" +
		payload.Message + "|" + payload.Link + "|" + payload.Media))
	return hex.EncodeToString(h.Sum(nil))
}
