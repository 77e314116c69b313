package taskanchorsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal TaskAnchor HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	TaskType      string `json:"task_type"`
	TaskData      string `json:"task_data_json"`
	TaskHash      string `json:"task_hash"`
	LedgerTxRef   string `json:"ledger_tx_ref"`
	State         string `json:"state"`
	OwnerID       string `json:"owner_id"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// Proof is one piece of execution evidence.
type Proof struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// TaskPage wraps list responses.
type TaskPage struct {
	Items      []Task `json:"items"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
	HasNext    bool   `json:"has_next"`
	HasPrev    bool   `json:"has_prev"`
}

// Verification is the audit report for one task.
type Verification struct {
	TaskID         string `json:"task_id"`
	TransactionID  string `json:"transaction_id"`
	StoredHash     string `json:"stored_hash"`
	ComputedHash   string `json:"computed_hash"`
	HashMatches    bool   `json:"hash_matches"`
	LedgerAnchored *bool  `json:"ledger_anchored,omitempty"`
	LedgerError    string `json:"ledger_error,omitempty"`
}

// BatchResult reports a batch execution item by item.
type BatchResult struct {
	Successful []string `json:"successful"`
	Failed     []struct {
		TaskID string `json:"task_id"`
		Error  string `json:"error"`
	} `json:"failed"`
	Summary struct {
		Total      int `json:"total"`
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
	} `json:"summary"`
}

// RoleResult reports a role assignment batch.
type RoleResult struct {
	Applied []struct {
		UserID  string `json:"user_id"`
		Address string `json:"address,omitempty"`
		Role    string `json:"role,omitempty"`
		Granted bool   `json:"granted"`
	} `json:"applied"`
	Failed []struct {
		UserID string `json:"user_id"`
		Error  string `json:"error,omitempty"`
	} `json:"failed"`
	Total int `json:"total"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates and anchors a task. Fields holds the flat payload; the
// server consumes the subset the task type declares.
func (c *Client) CreateTask(ctx context.Context, fields map[string]any) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", fields, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks pages through tasks newest first.
func (c *Client) ListTasks(ctx context.Context, taskType, state string, page, limit int) (TaskPage, error) {
	q := url.Values{}
	if taskType != "" {
		q.Set("type", taskType)
	}
	if state != "" {
		q.Set("state", state)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "v0/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp TaskPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ExecuteTask marks a task executed with the given proofs.
func (c *Client) ExecuteTask(ctx context.Context, id string, proofs []Proof) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks/"+url.PathEscape(id)+"/execute", map[string]any{"proofs": proofs}, &resp)
	return resp, err
}

// ExecuteBatch executes several tasks item by item.
func (c *Client) ExecuteBatch(ctx context.Context, items map[string][]Proof) (BatchResult, error) {
	payload := make([]map[string]any, 0, len(items))
	for id, proofs := range items {
		payload = append(payload, map[string]any{"task_id": id, "proofs": proofs})
	}
	var resp BatchResult
	err := c.do(ctx, http.MethodPost, "v0/tasks/execute-batch", map[string]any{"items": payload}, &resp)
	return resp, err
}

// Verify recomputes a task's canonical hash server-side.
func (c *Client) Verify(ctx context.Context, id string) (Verification, error) {
	var resp Verification
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(id)+"/verify", nil, &resp)
	return resp, err
}

// Moderate blocks or cancels a stored task.
func (c *Client) Moderate(ctx context.Context, id, state, reason string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks/"+url.PathEscape(id)+"/moderate", map[string]any{
		"state":  state,
		"reason": reason,
	}, &resp)
	return resp, err
}

// AssignRoles applies role assignments and syncs the on-chain ACL.
func (c *Client) AssignRoles(ctx context.Context, assignments map[string]string) (RoleResult, error) {
	payload := make([]map[string]string, 0, len(assignments))
	for userID, role := range assignments {
		payload = append(payload, map[string]string{"user_id": userID, "role": role})
	}
	var resp RoleResult
	err := c.do(ctx, http.MethodPost, "v0/roles/assign", map[string]any{"assignments": payload}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
