package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Promotor/internal/domain"
	"github.com/shaiso/Promotor/internal/queue"
	"github.com/shaiso/Promotor/internal/repo"
)

// EnqueueTask ставит задачу продвижения в очередь.
// POST /api/v1/tasks
func (h *Handler) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	var req EnqueueTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	platform, err := domain.ParsePlatform(req.Platform)
	if err != nil {
		BadRequest(w, "unknown platform")
		return
	}
	if req.ContentID == "" || req.UID == "" {
		BadRequest(w, "content_id and uid are required")
		return
	}

	// Дедупликация включена, если клиент явно её не выключил.
	skipIfDuplicate := true
	if req.SkipIfDuplicate != nil {
		skipIfDuplicate = *req.SkipIfDuplicate
	}

	result, err := h.enqueue.Enqueue(r.Context(), queue.EnqueueRequest{
		Platform:        platform,
		ContentID:       req.ContentID,
		UID:             req.UID,
		Reason:          req.Reason,
		Payload:         req.Payload,
		SkipIfDuplicate: skipIfDuplicate,
		ForceRepost:     req.ForceRepost,
		Delay:           time.Duration(req.DelaySec) * time.Second,
	})
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	resp := EnqueueTaskResponse{
		Skipped:    result.Skipped,
		SkipReason: string(result.Reason),
	}
	if result.Task != nil {
		task := TaskFromDomain(*result.Task)
		resp.Task = &task
	}

	if result.Skipped {
		Success(w, resp)
		return
	}
	Created(w, resp)
}

// ListTasks возвращает список задач с фильтрацией.
// GET /api/v1/tasks?status=...&platform=...&content_id=...&uid=...&limit=...&offset=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := repo.TaskFilter{}

	// Парсим query параметры
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.TaskStatus(status)
	}

	if platformStr := r.URL.Query().Get("platform"); platformStr != "" {
		platform, err := domain.ParsePlatform(platformStr)
		if err != nil {
			BadRequest(w, "unknown platform")
			return
		}
		filter.Platform = platform
	}

	filter.ContentID = r.URL.Query().Get("content_id")
	filter.UID = r.URL.Query().Get("uid")

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		filter.Limit = int(mustParseInt(limitStr, 50))
	} else {
		filter.Limit = 50
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		filter.Offset = int(mustParseInt(offsetStr, 0))
	}

	tasks, err := h.taskRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}

	List(w, result, len(result))
}

// GetTask возвращает задачу по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.taskRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// mustParseInt парсит строку в int с дефолтным значением.
func mustParseInt(s string, defaultVal int64) int64 {
	if n, err := json.Number(s).Int64(); err == nil {
		return n
	}
	return defaultVal
}
