package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Tasks
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.EnqueueTask)))
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))

	// Posts
	mux.Handle("GET /api/v1/posts", chain(http.HandlerFunc(h.ListPosts)))
	mux.Handle("GET /api/v1/posts/{platform}/{hash}", chain(http.HandlerFunc(h.GetPost)))

	// Variant stats
	mux.Handle("GET /api/v1/variants", chain(http.HandlerFunc(h.ListVariants)))

	// Dead letters
	mux.Handle("GET /api/v1/dead-letters", chain(http.HandlerFunc(h.ListDeadLetters)))
	mux.Handle("GET /api/v1/dead-letters/{task_id}", chain(http.HandlerFunc(h.GetDeadLetter)))

	// Counters
	mux.Handle("GET /api/v1/counters", chain(http.HandlerFunc(h.ListCounters)))
}
