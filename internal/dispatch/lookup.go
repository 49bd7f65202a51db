package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

// HTTPContentLookup читает записи контента из внешнего content-сервиса.
type HTTPContentLookup struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPContentLookup создаёт lookup поверх content-сервиса.
func NewHTTPContentLookup(baseURL string) *HTTPContentLookup {
	return &HTTPContentLookup{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// ContentLookupFromEnv создаёт lookup из CONTENT_SERVICE_URL.
// Возвращает nil, если переменная не задана: обогащение контентом
// в этом случае просто пропускается.
func ContentLookupFromEnv() *HTTPContentLookup {
	base := os.Getenv("CONTENT_SERVICE_URL")
	if base == "" {
		return nil
	}
	return NewHTTPContentLookup(base)
}

// Get возвращает запись контента по id.
func (l *HTTPContentLookup) Get(ctx context.Context, contentID string) (*Content, error) {
	var content Content
	if err := getJSON(ctx, l.httpClient, l.baseURL+"/api/v1/content/"+url.PathEscape(contentID), &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// HTTPPlanLookup читает тарифы пользователей из внешнего billing-сервиса.
type HTTPPlanLookup struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPlanLookup создаёт lookup поверх billing-сервиса.
func NewHTTPPlanLookup(baseURL string) *HTTPPlanLookup {
	return &HTTPPlanLookup{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// PlanLookupFromEnv создаёт lookup из PLAN_SERVICE_URL.
// Возвращает nil, если переменная не задана: квота в этом
// случае не проверяется (fail open).
func PlanLookupFromEnv() *HTTPPlanLookup {
	base := os.Getenv("PLAN_SERVICE_URL")
	if base == "" {
		return nil
	}
	return NewHTTPPlanLookup(base)
}

// Plan возвращает тариф пользователя.
func (l *HTTPPlanLookup) Plan(ctx context.Context, uid string) (*Plan, error) {
	var plan Plan
	if err := getJSON(ctx, l.httpClient, l.baseURL+"/api/v1/plans/"+url.PathEscape(uid), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func getJSON(ctx context.Context, client *http.Client, u string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lookup failed: HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode lookup response: %w", err)
	}
	return nil
}
