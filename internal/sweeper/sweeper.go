package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default configuration values.
const (
	defaultCronSpec            = "*/10 * * * *"
	defaultSuppressionCooldown = 12 * time.Hour
	defaultStuckThreshold      = 10 * time.Minute
)

// variantStore — реактивация подавленных вариантов.
type variantStore interface {
	ReactivateExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// taskStore — возврат застрявших processing-задач.
type taskStore interface {
	RequeueStuck(ctx context.Context, before time.Time) (int, error)
}

// Sweeper — периодические фоновые операции над хранилищем:
//
//   - реактивация вариантов, отбывших suppression cooldown
//     (подавление никогда не вечно);
//   - возврат в очередь задач, застрявших в processing после
//     смерти воркера.
type Sweeper struct {
	variants variantStore
	tasks    taskStore
	logger   *slog.Logger

	// SuppressionCooldown — сколько вариант сидит в подавлении.
	SuppressionCooldown time.Duration

	// StuckThreshold — сколько задача может висеть в processing.
	StuckThreshold time.Duration

	cronSpec string
	cron     *cron.Cron
}

// Config — конфигурация Sweeper.
type Config struct {
	Variants variantStore
	Tasks    taskStore
	Logger   *slog.Logger

	// CronSpec — расписание проходов (default: каждые 10 минут).
	CronSpec string

	SuppressionCooldown time.Duration // default: 12h
	StuckThreshold      time.Duration // default: 10m
}

// New создаёт новый Sweeper.
func New(cfg Config) *Sweeper {
	cronSpec := cfg.CronSpec
	if cronSpec == "" {
		cronSpec = defaultCronSpec
	}
	cooldown := cfg.SuppressionCooldown
	if cooldown <= 0 {
		cooldown = defaultSuppressionCooldown
	}
	stuck := cfg.StuckThreshold
	if stuck <= 0 {
		stuck = defaultStuckThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		variants:            cfg.Variants,
		tasks:               cfg.Tasks,
		logger:              logger,
		SuppressionCooldown: cooldown,
		StuckThreshold:      stuck,
		cronSpec:            cronSpec,
	}
}

// Start запускает cron-расписание проходов. Первый проход выполняется
// сразу, не дожидаясь первого тика.
func (s *Sweeper) Start(ctx context.Context) error {
	s.Sweep(ctx)

	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cronSpec, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started", "cron", s.cronSpec)
	return nil
}

// Stop останавливает расписание и дожидается текущего прохода.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.logger.Info("sweeper stopped")
}

// Sweep выполняет один проход. Ошибки отдельных операций логируются
// и не прерывают остальные.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	if s.variants != nil {
		cutoff := now.Add(-s.SuppressionCooldown)
		n, err := s.variants.ReactivateExpired(ctx, cutoff)
		if err != nil {
			s.logger.Error("variant reactivation failed", "error", err)
		} else if n > 0 {
			s.logger.Info("variants reactivated", "count", n)
		}
	}

	if s.tasks != nil {
		before := now.Add(-s.StuckThreshold)
		n, err := s.tasks.RequeueStuck(ctx, before)
		if err != nil {
			s.logger.Error("stuck task requeue failed", "error", err)
		} else if n > 0 {
			s.logger.Info("stuck tasks requeued", "count", n)
		}
	}
}
