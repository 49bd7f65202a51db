package api

import (
	"log/slog"

	"github.com/shaiso/Promotor/internal/queue"
	"github.com/shaiso/Promotor/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	enqueue        *queue.Service
	taskRepo       *repo.TaskRepo
	postRepo       *repo.PostRepo
	variantRepo    *repo.VariantRepo
	deadLetterRepo *repo.DeadLetterRepo
	counterRepo    *repo.CounterRepo
	logger         *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Enqueue        *queue.Service
	TaskRepo       *repo.TaskRepo
	PostRepo       *repo.PostRepo
	VariantRepo    *repo.VariantRepo
	DeadLetterRepo *repo.DeadLetterRepo
	CounterRepo    *repo.CounterRepo
	Logger         *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		enqueue:        cfg.Enqueue,
		taskRepo:       cfg.TaskRepo,
		postRepo:       cfg.PostRepo,
		variantRepo:    cfg.VariantRepo,
		deadLetterRepo: cfg.DeadLetterRepo,
		counterRepo:    cfg.CounterRepo,
		logger:         cfg.Logger,
	}
}
