package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Promotor/internal/bandit"
	"github.com/shaiso/Promotor/internal/dispatch"
	"github.com/shaiso/Promotor/internal/domain"
	"github.com/shaiso/Promotor/internal/mq"
	"github.com/shaiso/Promotor/internal/queue"
	"github.com/shaiso/Promotor/internal/repo"
	"github.com/shaiso/Promotor/internal/telemetry"
)

// Outcome описывает, что произошло с выбранной задачей. ProcessNext
// возвращает его вместо ошибки для всех ожидаемых исходов: диспатч-ошибки
// классифицируются и превращаются в переходы статусов, а не в панику
// цикла обработки.
type Outcome struct {
	// TaskID — обработанная задача.
	TaskID uuid.UUID

	// Status — статус задачи после обработки.
	Status domain.TaskStatus

	// SkipReason — причина skip/deferral (если была).
	SkipReason domain.SkipReason

	// Retrying — задача вернулась в очередь после retryable ошибки.
	Retrying bool

	// Deferred — задача отложена из-за cooldown платформы (без попытки).
	Deferred bool

	// NextAttemptAt — когда задача станет снова выбираемой.
	NextAttemptAt time.Time

	// Error / ErrorClass — последняя ошибка диспатча.
	Error      string
	ErrorClass domain.ErrorClass

	// ExternalID — id поста на платформе (при успехе).
	ExternalID string
}

// ProcessNext выбирает самую приоритетную готовую задачу и проводит её
// через полный конвейер: подпись → cooldown → блокировка → вариант →
// диспатч → исход. Возвращает nil, если готовых задач нет.
func (w *Worker) ProcessNext(ctx context.Context) (*Outcome, error) {
	if w.IsStopped() {
		return nil, ErrWorkerStopped
	}

	batch, err := w.tasks.ListQueued(ctx, domain.TaskTypePlatformPost, w.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list queued tasks: %w", err)
	}

	now := time.Now().UTC()
	var eligible []domain.Task
	for i := range batch {
		if batch[i].Eligible(now) {
			eligible = append(eligible, batch[i])
		}
	}

	// Кандидаты берутся по приоритету; проигравший claim гонку кандидат
	// просто уступает место следующему.
	for len(eligible) > 0 {
		idx := w.pickBest(ctx, eligible)
		task := eligible[idx]

		err := w.tasks.ClaimProcessing(ctx, task.ID)
		if errors.Is(err, repo.ErrInvalidState) {
			eligible = append(eligible[:idx], eligible[idx+1:]...)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		_ = task.MarkProcessing()

		return w.process(ctx, &task)
	}
	return nil, nil
}

// ProcessByID обрабатывает конкретную задачу из wake-up события, минуя
// приоритетную выборку. Возвращает ErrTaskNotFound, если задачи нет, и
// ErrTaskNotQueued, если она не готова или её уже увёл другой воркер.
func (w *Worker) ProcessByID(ctx context.Context, id uuid.UUID) (*Outcome, error) {
	if w.IsStopped() {
		return nil, ErrWorkerStopped
	}

	task, err := w.tasks.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if !task.Eligible(time.Now().UTC()) {
		return nil, ErrTaskNotQueued
	}

	if err := w.tasks.ClaimProcessing(ctx, task.ID); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return nil, ErrTaskNotQueued
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	_ = task.MarkProcessing()

	return w.process(ctx, task)
}

// process проводит claimed задачу через конвейер обработки.
func (w *Worker) process(ctx context.Context, task *domain.Task) (*Outcome, error) {
	log := w.logger.With("task_id", task.ID, "platform", task.Platform, "content_id", task.ContentID)
	now := time.Now().UTC()

	// 1. Целостность: повреждённая задача никогда не диспатчится.
	if w.signer != nil && !w.signer.Verify(task.SignableBody(), task.Signature) {
		task.IntegrityFailed = true
		if err := task.MarkFailed("task signature verification failed", domain.ErrClassIntegrity); err != nil {
			return nil, err
		}
		if err := w.tasks.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("update task: %w", err)
		}
		w.deadLetter(ctx, task)
		log.Error("task failed integrity check")
		return &Outcome{
			TaskID:     task.ID,
			Status:     task.Status,
			Error:      task.Error,
			ErrorClass: task.ErrorClass,
		}, nil
	}

	// 2. Cooldown платформы: деферрал без расхода попытки.
	if w.cooldown != nil {
		if until, active := w.cooldown.Until(ctx, task.Platform); active {
			next := until.Add(500 * time.Millisecond)
			if err := task.Defer(next); err != nil {
				return nil, err
			}
			if err := w.tasks.Update(ctx, task); err != nil {
				return nil, fmt.Errorf("update task: %w", err)
			}
			log.Info("task deferred by platform cooldown", "next_attempt_at", next)
			return &Outcome{
				TaskID:        task.ID,
				Status:        task.Status,
				SkipReason:    domain.SkipRateLimitCooldown,
				Deferred:      true,
				NextAttemptAt: next,
			}, nil
		}
	}

	// 3. Эксклюзивное владение (platform, postHash).
	owned, skipReason, err := w.acquireLock(ctx, task, now)
	if err != nil {
		return nil, err
	}
	if !owned {
		if err := task.MarkSkipped(skipReason); err != nil {
			return nil, err
		}
		if err := w.tasks.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("update task: %w", err)
		}
		w.publishCompletion(ctx, task, "")
		log.Info("task skipped", "skip_reason", skipReason)
		return &Outcome{TaskID: task.ID, Status: task.Status, SkipReason: skipReason}, nil
	}

	// 4. Контент: стратегия варианта + материал для shortlink.
	var content *dispatch.Content
	if w.content != nil {
		if c, err := w.content.Get(ctx, task.ContentID); err == nil {
			content = c
		} else {
			log.Debug("content lookup failed", "error", err)
		}
	}

	// 5. Выбор варианта текста.
	sel := bandit.Selection{Index: -1}
	if w.selector != nil && len(task.Payload.Variants) > 0 {
		strategy := ""
		if content != nil {
			strategy = content.VariantStrategy
		}
		sel = w.selector.Select(ctx, task.ContentID, task.Platform, task.Payload.Variants, strategy)
		if sel.Index >= 0 {
			task.Payload.Message = sel.Variant
			log.Debug("variant selected",
				"variant_index", sel.Index,
				"strategy", sel.Strategy,
				"cold_start", sel.ColdStart,
			)
		}
	}

	// 6. Shortlink-обогащение. Не фатально: пост уходит и без него.
	if content != nil && content.LandingURL != "" && task.Payload.Shortlink == "" {
		task.Payload.Shortlink = buildShortlink(task.PostHash)
	}

	// 7. Диспатч.
	start := time.Now()
	result, dispatchErr := w.dispatcher.Dispatch(ctx, dispatch.Request{
		Platform:  task.Platform,
		ContentID: task.ContentID,
		UID:       task.UID,
		Reason:    task.Reason,
		Payload:   task.Payload,
	})
	telemetry.DispatchDuration.WithLabelValues(string(task.Platform)).Observe(time.Since(start).Seconds())

	if dispatchErr != nil {
		return w.handleFailure(ctx, task, dispatchErr)
	}
	return w.handleSuccess(ctx, task, sel, result)
}

// acquireLock реализует протокол create-if-absent + takeover.
func (w *Worker) acquireLock(ctx context.Context, task *domain.Task, now time.Time) (bool, domain.SkipReason, error) {
	rec := domain.NewPostLock(task.Platform, task.PostHash, task.ContentID, task.UID, task.ID)
	created, existing, err := w.posts.TryCreateLock(ctx, rec)
	if err != nil {
		return false, "", fmt.Errorf("create lock: %w", err)
	}
	if created {
		return true, "", nil
	}

	switch {
	case existing.Succeeded():
		return false, domain.SkipDuplicateRecent, nil

	case existing.TaskID == task.ID:
		// Re-entry после падения: запись уже наша.
		return true, "", nil

	case existing.Stale(now, w.takeoverThreshold):
		w.incr(ctx, repo.CounterTakeoverAttempt)
		res, err := w.posts.TryTakeover(ctx, task.Platform, task.PostHash, task.ID, w.takeoverThreshold)
		if err != nil {
			return false, "", fmt.Errorf("takeover: %w", err)
		}
		if res.Taken {
			w.incr(ctx, repo.CounterTakeoverSuccess)
			telemetry.LockTakeovers.WithLabelValues("success").Inc()
			w.logger.Info("stale lock taken over",
				"task_id", task.ID,
				"post_hash", task.PostHash,
				"previous_owner", res.Existing.TaskID,
			)
			return true, "", nil
		}
		w.incr(ctx, repo.CounterTakeoverFailure)
		telemetry.LockTakeovers.WithLabelValues("failure").Inc()
		if res.Reason == "already_success" {
			return false, domain.SkipDuplicateRecent, nil
		}
		return false, domain.SkipDuplicatePending, nil

	default:
		return false, domain.SkipDuplicatePending, nil
	}
}

// handleSuccess фиксирует успешный диспатч.
func (w *Worker) handleSuccess(ctx context.Context, task *domain.Task, sel bandit.Selection, result *dispatch.Result) (*Outcome, error) {
	log := w.logger.With("task_id", task.ID, "platform", task.Platform)

	outcome := map[string]any{}
	if result.Raw != "" {
		outcome["raw"] = result.Raw
	}
	if len(result.Metrics) > 0 {
		metrics := make(map[string]any, len(result.Metrics))
		for k, v := range result.Metrics {
			metrics[k] = v
		}
		outcome["metrics"] = metrics
	}

	var variantIndex *int
	usedVariant := ""
	if sel.Index >= 0 {
		idx := sel.Index
		variantIndex = &idx
		usedVariant = sel.Variant
	}

	err := w.posts.Finalize(ctx, task.Platform, task.PostHash, repo.FinalizeParams{
		Success:      true,
		ExternalID:   result.ExternalID,
		Outcome:      outcome,
		Simulated:    result.Simulated,
		UsedVariant:  usedVariant,
		VariantIndex: variantIndex,
	})
	if err != nil {
		// ErrInvalidState = запись уже разрешена. На этой ветке такое
		// возможно только при гонке с takeover — логируем и продолжаем.
		log.Warn("failed to finalize post record", "error", err)
	}

	if err := task.MarkCompleted(); err != nil {
		return nil, err
	}
	if err := w.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	w.incr(ctx, repo.CounterTaskCompletedPrefix+string(task.Type))
	telemetry.TasksProcessed.WithLabelValues(string(task.Platform), "completed").Inc()

	// Статистика варианта для бандита.
	if w.recorder != nil && usedVariant != "" {
		m := bandit.OutcomeMetrics{
			Clicks:      result.Metrics["clicks"],
			Impressions: result.Metrics["impressions"],
		}
		if err := w.recorder.RecordPost(ctx, task.ContentID, task.Platform, usedVariant, task.Payload.Variants, m); err != nil {
			log.Warn("failed to record variant stats", "error", err)
		}
	}

	w.publishCompletion(ctx, task, "")

	w.maybeFastFollow(ctx, task, result)

	log.Info("task completed",
		"external_id", result.ExternalID,
		"simulated", result.Simulated,
		"attempts", task.Attempts,
	)
	return &Outcome{
		TaskID:     task.ID,
		Status:     task.Status,
		ExternalID: result.ExternalID,
	}, nil
}

// handleFailure классифицирует ошибку диспатча и решает судьбу задачи.
func (w *Worker) handleFailure(ctx context.Context, task *domain.Task, dispatchErr error) (*Outcome, error) {
	log := w.logger.With("task_id", task.ID, "platform", task.Platform)

	errMsg := dispatchErr.Error()
	class := domain.ClassifyError(errMsg)

	// Rate limit бьёт по платформе целиком — ставим окно для всех задач.
	if class == domain.ErrClassRateLimit {
		if w.cooldown != nil {
			w.cooldown.Note(ctx, task.Platform, w.cooldownWindow)
		}
		w.incr(ctx, repo.CounterRateLimitPrefix+string(task.Platform))
		telemetry.RateLimitEvents.WithLabelValues(string(task.Platform)).Inc()
	}

	if class.Retryable() && task.CanRetry(w.maxAttempts) {
		next := time.Now().UTC().Add(Backoff(task.Attempts, w.baseBackoff, class))
		if err := task.MarkRetry(errMsg, class, next); err != nil {
			return nil, err
		}
		if err := w.tasks.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("update task: %w", err)
		}
		telemetry.TaskRetries.WithLabelValues(string(class)).Inc()
		log.Warn("task dispatch failed, retrying",
			"error", errMsg,
			"error_class", class,
			"attempts", task.Attempts,
			"next_attempt_at", next,
		)
		return &Outcome{
			TaskID:        task.ID,
			Status:        task.Status,
			Retrying:      true,
			NextAttemptAt: next,
			Error:         errMsg,
			ErrorClass:    class,
		}, nil
	}

	// Терминальный провал: failed + dead letter + success=false запись.
	if err := task.MarkFailed(errMsg, class); err != nil {
		return nil, err
	}
	if err := w.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	w.deadLetter(ctx, task)
	w.incr(ctx, repo.CounterTaskFailedPrefix+string(task.Type))
	telemetry.TasksProcessed.WithLabelValues(string(task.Platform), "failed").Inc()

	// Best-effort: исход фиксируется и в аудите постов.
	err := w.posts.Finalize(ctx, task.Platform, task.PostHash, repo.FinalizeParams{
		Success: false,
		Outcome: map[string]any{"error": errMsg, "error_class": string(class)},
	})
	if err != nil {
		log.Debug("failed to finalize post record after failure", "error", err)
	}

	w.publishCompletion(ctx, task, errMsg)

	log.Error("task failed permanently",
		"error", errMsg,
		"error_class", class,
		"attempts", task.Attempts,
	)
	return &Outcome{
		TaskID:     task.ID,
		Status:     task.Status,
		Error:      errMsg,
		ErrorClass: class,
	}, nil
}

// maybeFastFollow ставит адаптивную follow-up задачу, если первый пост
// быстро набрал клики.
func (w *Worker) maybeFastFollow(ctx context.Context, task *domain.Task, result *dispatch.Result) {
	if !w.fastFollowEnabled || w.enqueuer == nil || task.Payload.FastFollow {
		return
	}
	if result.Metrics["clicks"] < w.fastFollowClicks {
		return
	}

	payload := task.Payload
	payload.FastFollow = true
	delay := bandit.FastFollowDelay(w.baseBackoff)

	res, err := w.enqueuer.Enqueue(ctx, queue.EnqueueRequest{
		Platform:        task.Platform,
		ContentID:       task.ContentID,
		UID:             task.UID,
		Reason:          "fast_follow",
		Payload:         payload,
		SkipIfDuplicate: true,
		Delay:           delay,
	})
	if err != nil {
		w.logger.Warn("failed to enqueue fast-follow task", "task_id", task.ID, "error", err)
		return
	}
	if res.Skipped {
		w.logger.Debug("fast-follow skipped", "task_id", task.ID, "skip_reason", res.Reason)
		return
	}

	w.incr(ctx, repo.CounterFastFollows)
	w.logger.Info("fast-follow task enqueued",
		"task_id", task.ID,
		"follow_task_id", res.Task.ID,
		"delay", delay,
	)
}

// deadLetter сохраняет неизменяемую копию задачи и публикует событие.
func (w *Worker) deadLetter(ctx context.Context, task *domain.Task) {
	if w.deadbox == nil {
		return
	}
	dl := domain.NewDeadLetter(task)
	if err := w.deadbox.Insert(ctx, dl); err != nil {
		w.logger.Error("failed to insert dead letter", "task_id", task.ID, "error", err)
		return
	}
	w.incr(ctx, repo.CounterTasksDeadLettered)

	if w.publisher != nil {
		err := w.publisher.PublishTaskDeadLettered(ctx, mq.TaskDeadLetteredPayload{
			TaskID:          task.ID,
			Platform:        string(task.Platform),
			Error:           task.Error,
			ErrorClass:      string(task.ErrorClass),
			IntegrityFailed: task.IntegrityFailed,
		})
		if err != nil {
			w.logger.Warn("failed to publish task.dead_lettered", "task_id", task.ID, "error", err)
		}
	}
}

// publishCompletion публикует событие task.completed.
func (w *Worker) publishCompletion(ctx context.Context, task *domain.Task, errMsg string) {
	if w.publisher == nil {
		return
	}
	err := w.publisher.PublishTaskCompleted(ctx, mq.TaskCompletedPayload{
		TaskID:    task.ID,
		Platform:  string(task.Platform),
		ContentID: task.ContentID,
		Status:    string(task.Status),
		Error:     errMsg,
		Attempts:  task.Attempts,
	})
	if err != nil {
		// Не возвращаем ошибку — задача обновлена в БД, события best-effort.
		w.logger.Warn("failed to publish task.completed", "task_id", task.ID, "error", err)
	}
}

// incr инкрементирует персистентный счётчик best-effort.
func (w *Worker) incr(ctx context.Context, name string) {
	if w.counters == nil {
		return
	}
	if err := w.counters.Incr(ctx, name); err != nil {
		w.logger.Warn("failed to increment counter", "counter", name, "error", err)
	}
}

// buildShortlink строит короткую ссылку из детерминированного префикса
// postHash: один и тот же пост всегда даёт один shortlink.
func buildShortlink(postHash string) string {
	base := os.Getenv("PROMO_SHORTLINK_BASE")
	if base == "" {
		base = "https://promo.sh"
	}
	code := postHash
	if len(code) > 10 {
		code = code[:10]
	}
	return base + "/" + code
}
