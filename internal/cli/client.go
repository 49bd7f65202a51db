package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — задача из API.
type TaskResponse struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Status          string         `json:"status"`
	Platform        string         `json:"platform"`
	ContentID       string         `json:"content_id"`
	UID             string         `json:"uid"`
	Reason          string         `json:"reason,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	PostHash        string         `json:"post_hash"`
	Attempts        int            `json:"attempts"`
	NextAttemptAt   string         `json:"next_attempt_at"`
	Error           string         `json:"error,omitempty"`
	ErrorClass      string         `json:"error_class,omitempty"`
	IntegrityFailed bool           `json:"integrity_failed,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

// EnqueueResponse — исход постановки задачи.
type EnqueueResponse struct {
	Task       *TaskResponse `json:"task,omitempty"`
	Skipped    bool          `json:"skipped"`
	SkipReason string        `json:"skip_reason,omitempty"`
}

// PostResponse — запись поста из API.
type PostResponse struct {
	Platform     string         `json:"platform"`
	PostHash     string         `json:"post_hash"`
	ContentID    string         `json:"content_id"`
	UID          string         `json:"uid"`
	TaskID       string         `json:"task_id"`
	Success      *bool          `json:"success,omitempty"`
	ExternalID   string         `json:"external_id,omitempty"`
	Simulated    bool           `json:"simulated,omitempty"`
	UsedVariant  string         `json:"used_variant,omitempty"`
	Metrics      map[string]any `json:"metrics,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// VariantResponse — статистика варианта из API.
type VariantResponse struct {
	ContentID     string   `json:"content_id"`
	Platform      string   `json:"platform"`
	Value         string   `json:"value"`
	Posts         int      `json:"posts"`
	Clicks        int      `json:"clicks"`
	Impressions   int      `json:"impressions"`
	DecayedClicks float64  `json:"decayed_clicks"`
	DecayedPosts  float64  `json:"decayed_posts"`
	Anomaly       bool     `json:"anomaly"`
	Suppressed    bool     `json:"suppressed"`
	Quarantined   bool     `json:"quarantined"`
	QualityScore  *float64 `json:"quality_score,omitempty"`
}

// DeadLetterResponse — dead-letter запись из API.
type DeadLetterResponse struct {
	TaskID          string       `json:"task_id"`
	Body            TaskResponse `json:"body"`
	Error           string       `json:"error"`
	ErrorClass      string       `json:"error_class,omitempty"`
	IntegrityFailed bool         `json:"integrity_failed,omitempty"`
	CreatedAt       string       `json:"created_at"`
}

// --- Request types ---

// EnqueueRequest — постановка задачи продвижения.
type EnqueueRequest struct {
	Platform        string         `json:"platform"`
	ContentID       string         `json:"content_id"`
	UID             string         `json:"uid"`
	Reason          string         `json:"reason,omitempty"`
	Payload         map[string]any `json:"payload"`
	SkipIfDuplicate *bool          `json:"skip_if_duplicate,omitempty"`
	ForceRepost     bool           `json:"force_repost,omitempty"`
	DelaySec        int            `json:"delay_sec,omitempty"`
}

// ListTasksOpts — параметры фильтрации задач.
type ListTasksOpts struct {
	Status    string
	Platform  string
	ContentID string
	UID       string
	Limit     int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Promotor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// Enqueue ставит задачу продвижения в очередь.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.post("/api/v1/tasks", req, &resp)
	return &resp, err
}

// ListTasks возвращает список задач с фильтрацией.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Platform != "" {
		params.Set("platform", opts.Platform)
	}
	if opts.ContentID != "" {
		params.Set("content_id", opts.ContentID)
	}
	if opts.UID != "" {
		params.Set("uid", opts.UID)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// GetTask возвращает задачу по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// --- Posts ---

// ListPosts возвращает последние посты контента.
func (c *Client) ListPosts(contentID string, limit int) ([]PostResponse, error) {
	params := url.Values{}
	params.Set("content_id", contentID)
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var posts []PostResponse
	err := c.list("/api/v1/posts", params, &posts)
	return posts, err
}

// GetPost возвращает запись поста по (platform, hash).
func (c *Client) GetPost(platform, hash string) (*PostResponse, error) {
	var post PostResponse
	err := c.get("/api/v1/posts/"+platform+"/"+hash, &post)
	return &post, err
}

// ListVariants возвращает статистику вариантов.
func (c *Client) ListVariants(contentID, platform string) ([]VariantResponse, error) {
	params := url.Values{}
	params.Set("content_id", contentID)
	params.Set("platform", platform)

	var variants []VariantResponse
	err := c.list("/api/v1/variants", params, &variants)
	return variants, err
}

// --- Dead letters ---

// ListDeadLetters возвращает последние dead-letter записи.
func (c *Client) ListDeadLetters(limit int) ([]DeadLetterResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var letters []DeadLetterResponse
	err := c.list("/api/v1/dead-letters", params, &letters)
	return letters, err
}

// GetDeadLetter возвращает dead-letter запись по id задачи.
func (c *Client) GetDeadLetter(taskID string) (*DeadLetterResponse, error) {
	var dl DeadLetterResponse
	err := c.get("/api/v1/dead-letters/"+taskID, &dl)
	return &dl, err
}

// --- Counters ---

// Counters возвращает все операционные счётчики.
func (c *Client) Counters() (map[string]int64, error) {
	var counters map[string]int64
	err := c.get("/api/v1/counters", &counters)
	return counters, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
