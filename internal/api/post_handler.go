package api

import (
	"net/http"

	"github.com/shaiso/Promotor/internal/domain"
)

// ListPosts возвращает последние посты контента.
// GET /api/v1/posts?content_id=...&limit=...
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("content_id")
	if contentID == "" {
		BadRequest(w, "content_id is required")
		return
	}

	limit := int(mustParseInt(r.URL.Query().Get("limit"), 20))

	posts, err := h.postRepo.RecentByContent(r.Context(), contentID, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PostResponse, len(posts))
	for i, p := range posts {
		result[i] = PostFromDomain(p)
	}

	List(w, result, len(result))
}

// GetPost возвращает запись поста по ключу блокировки.
// GET /api/v1/posts/{platform}/{hash}
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		BadRequest(w, "unknown platform")
		return
	}

	hash := r.PathValue("hash")
	if hash == "" {
		BadRequest(w, "hash is required")
		return
	}

	post, err := h.postRepo.Get(r.Context(), platform, hash)
	if HandleRepoError(w, h.logger, err, "post not found") {
		return
	}

	Success(w, PostFromDomain(*post))
}

// ListVariants возвращает статистику вариантов контента на платформе.
// GET /api/v1/variants?content_id=...&platform=...
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("content_id")
	if contentID == "" {
		BadRequest(w, "content_id is required")
		return
	}

	platform, err := domain.ParsePlatform(r.URL.Query().Get("platform"))
	if err != nil {
		BadRequest(w, "unknown platform")
		return
	}

	rows, err := h.variantRepo.Rows(r.Context(), contentID, platform)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]VariantResponse, len(rows))
	for i, v := range rows {
		result[i] = VariantFromDomain(v)
	}

	List(w, result, len(result))
}
