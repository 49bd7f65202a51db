package api

import (
	"net/http"

	"github.com/google/uuid"
)

// ListDeadLetters возвращает последние dead-letter записи.
// GET /api/v1/dead-letters?limit=...
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := int(mustParseInt(r.URL.Query().Get("limit"), 50))

	letters, err := h.deadLetterRepo.List(r.Context(), limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DeadLetterResponse, len(letters))
	for i, dl := range letters {
		result[i] = DeadLetterFromDomain(dl)
	}

	List(w, result, len(result))
}

// GetDeadLetter возвращает dead-letter запись по id исходной задачи.
// GET /api/v1/dead-letters/{task_id}
func (h *Handler) GetDeadLetter(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("task_id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	dl, err := h.deadLetterRepo.Get(r.Context(), taskID)
	if HandleRepoError(w, h.logger, err, "dead letter not found") {
		return
	}

	Success(w, DeadLetterFromDomain(*dl))
}

// ListCounters возвращает все операционные счётчики.
// GET /api/v1/counters
func (h *Handler) ListCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.counterRepo.All(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, counters)
}
