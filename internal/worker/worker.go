package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Promotor/internal/bandit"
	"github.com/shaiso/Promotor/internal/dispatch"
	"github.com/shaiso/Promotor/internal/domain"
	"github.com/shaiso/Promotor/internal/mq"
	"github.com/shaiso/Promotor/internal/queue"
	"github.com/shaiso/Promotor/internal/repo"
	"github.com/shaiso/Promotor/internal/signer"
)

// Default configuration values.
const (
	defaultPollInterval      = 10 * time.Second
	defaultBatchSize         = 10
	defaultPrefetch          = 5
	defaultTakeoverThreshold = 5 * time.Minute
	defaultCooldownWindow    = 15 * time.Minute
	defaultFastFollowClicks  = 5
)

// taskStore — операции воркера над promotion_tasks.
type taskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	ClaimProcessing(ctx context.Context, id uuid.UUID) error
	ListQueued(ctx context.Context, taskType domain.TaskType, limit int) ([]domain.Task, error)
}

// postStore — блокировки и аудит platform_posts.
type postStore interface {
	TryCreateLock(ctx context.Context, rec *domain.PostRecord) (bool, *domain.PostRecord, error)
	TryTakeover(ctx context.Context, platform domain.Platform, postHash string, newTaskID uuid.UUID, threshold time.Duration) (*repo.TakeoverResult, error)
	Finalize(ctx context.Context, platform domain.Platform, postHash string, p repo.FinalizeParams) error
	RecentByContent(ctx context.Context, contentID string, limit int) ([]domain.PostRecord, error)
}

// deadLetterStore — неизменяемые копии терминально провалившихся задач.
type deadLetterStore interface {
	Insert(ctx context.Context, dl *domain.DeadLetterTask) error
}

// counterStore — персистентные счётчики (best-effort).
type counterStore interface {
	Incr(ctx context.Context, name string) error
}

// variantSelector — выбор варианта текста.
type variantSelector interface {
	Select(ctx context.Context, contentID string, platform domain.Platform, variants []string, strategy string) bandit.Selection
}

// statsRecorder — обновление статистики вариантов по исходу поста.
type statsRecorder interface {
	RecordPost(ctx context.Context, contentID string, platform domain.Platform, variant string, allVariants []string, m bandit.OutcomeMetrics) error
}

// cooldownGate — rate-limit окна платформ.
type cooldownGate interface {
	Until(ctx context.Context, platform domain.Platform) (time.Time, bool)
	Note(ctx context.Context, platform domain.Platform, window time.Duration)
}

// enqueuer — самопостановка fast-follow задач.
type enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.EnqueueResult, error)
}

// Worker обрабатывает задачи продвижения.
//
// Worker — stateless компонент системы, который:
//   - Получает wake-up события из очереди RabbitMQ (event-driven)
//   - Периодически проверяет queued tasks в БД (polling fallback)
//   - Выбирает задачу по приоритету, берёт распределённую блокировку,
//     выбирает вариант текста и диспатчит пост
//   - Реализует retry с exponential backoff и классификацией ошибок
//
// Workers масштабируются горизонтально — корректность при конкуренции
// обеспечивают условные переходы статусов и протокол блокировок,
// а не координация между экземплярами.
type Worker struct {
	// Stores
	tasks    taskStore
	posts    postStore
	deadbox  deadLetterStore
	counters counterStore

	// Collaborators
	selector   variantSelector
	recorder   statsRecorder
	cooldown   cooldownGate
	dispatcher dispatch.Dispatcher
	content    dispatch.ContentLookup
	signer     *signer.Signer
	enqueuer   enqueuer

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection
	consumer  *mq.Consumer

	// Configuration
	pollInterval      time.Duration
	batchSize         int
	maxAttempts       int
	baseBackoff       time.Duration
	takeoverThreshold time.Duration
	cooldownWindow    time.Duration
	fastFollowClicks  int
	fastFollowEnabled bool

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Stores
	Tasks       taskStore
	Posts       postStore
	DeadLetters deadLetterStore
	Counters    counterStore

	// Collaborators
	Selector   variantSelector
	Recorder   statsRecorder
	Cooldown   cooldownGate
	Dispatcher dispatch.Dispatcher
	Content    dispatch.ContentLookup
	Signer     *signer.Signer
	Enqueuer   enqueuer

	// MQ (опционально; без них воркер работает в режиме чистого polling)
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // кандидатов за один выбор (default: 10)

	// Retry / lock configuration
	MaxAttempts       int           // попыток диспатча (default: 5)
	BaseBackoff       time.Duration // база экспоненциального backoff (default: 30s)
	TakeoverThreshold time.Duration // staleness блокировки (default: 5m)
	CooldownWindow    time.Duration // окно rate-limit cooldown (default: 15m)

	// Fast-follow configuration
	FastFollowClicks  int  // порог кликов (default: 5)
	FastFollowEnabled bool // включён ли адаптивный fast-follow

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	baseBackoff := cfg.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = DefaultBaseBackoff
	}
	takeoverThreshold := cfg.TakeoverThreshold
	if takeoverThreshold <= 0 {
		takeoverThreshold = defaultTakeoverThreshold
	}
	cooldownWindow := cfg.CooldownWindow
	if cooldownWindow <= 0 {
		cooldownWindow = defaultCooldownWindow
	}
	fastFollowClicks := cfg.FastFollowClicks
	if fastFollowClicks <= 0 {
		fastFollowClicks = defaultFastFollowClicks
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		tasks:             cfg.Tasks,
		posts:             cfg.Posts,
		deadbox:           cfg.DeadLetters,
		counters:          cfg.Counters,
		selector:          cfg.Selector,
		recorder:          cfg.Recorder,
		cooldown:          cfg.Cooldown,
		dispatcher:        cfg.Dispatcher,
		content:           cfg.Content,
		signer:            cfg.Signer,
		enqueuer:          cfg.Enqueuer,
		publisher:         cfg.Publisher,
		conn:              cfg.Conn,
		pollInterval:      pollInterval,
		batchSize:         batchSize,
		maxAttempts:       maxAttempts,
		baseBackoff:       baseBackoff,
		takeoverThreshold: takeoverThreshold,
		cooldownWindow:    cooldownWindow,
		fastFollowClicks:  fastFollowClicks,
		fastFollowEnabled: cfg.FastFollowEnabled,
		logger:            logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для tasks.enqueued (низколатентный wake-up)
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"max_attempts", w.maxAttempts,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueTasksEnqueued),
			Handler:  w.handleTaskEnqueued,
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("task consumer error", "error", err)
			}
		}()
	} else {
		w.logger.Info("no AMQP connection, running in polling-only mode")
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleTaskEnqueued обрабатывает wake-up событие из tasks.enqueued.
//
// Событие не несёт работы само по себе — это сигнал, что в БД появилась
// задача. Claim идёт через условный переход статуса, поэтому дубликаты
// и потерянные сообщения безвредны: проигравший гонку получает
// ErrTaskNotQueued, потерянное событие компенсирует polling.
func (w *Worker) handleTaskEnqueued(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskEnqueuedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse task.enqueued payload", "error", err)
		return err
	}

	w.logger.Debug("received task.enqueued event",
		"task_id", payload.TaskID,
		"platform", payload.Platform,
	)

	if _, err := w.ProcessByID(ctx, payload.TaskID); err != nil {
		switch {
		case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrTaskNotQueued):
			// Другой воркер успел раньше, либо задача отложена — событие
			// лишь сигнал, polling её всё равно подберёт.
			w.logger.Debug("enqueued task not processed", "task_id", payload.TaskID, "reason", err)
			return nil
		case errors.Is(err, ErrWorkerStopped):
			return nil
		}
		w.logger.Error("failed to process task from event", "error", err)
		return err
	}
	return nil
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем задачи, созданные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет циклы ProcessNext, пока есть готовые задачи
// (не больше batchSize за проход, чтобы не монополизировать очередь).
func (w *Worker) poll(ctx context.Context) {
	for i := 0; i < w.batchSize; i++ {
		outcome, err := w.ProcessNext(ctx)
		if errors.Is(err, ErrWorkerStopped) {
			return
		}
		if err != nil {
			w.logger.Error("failed to process task from poll", "error", err)
			return
		}
		if outcome == nil {
			return
		}
	}
}
