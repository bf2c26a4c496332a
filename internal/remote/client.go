// Package remote is the HTTP client for the MorningTrio task service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fentz26/morningtrio/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Errors mapped from response status codes.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrBadRequest      = errors.New("bad request")
)

// Client talks to the task service on behalf of one signed-in user.
type Client struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
}

// NewClient creates a client. token is read on every request so a sign-in
// or sign-out takes effect without rebuilding the client.
func NewClient(baseURL string, token func() string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HealthResponse matches the server's health response.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Health checks the service. It needs no token.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Me returns the user id the current token belongs to.
func (c *Client) Me(ctx context.Context) (string, error) {
	var out struct {
		UserID string `json:"userId"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

// ListTasks fetches every task the user owns.
func (c *Client) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates a task with a client-chosen id. It returns ErrConflict
// if the id already exists.
func (c *Client) CreateTask(ctx context.Context, task models.Task) (*models.Task, error) {
	var created models.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask sends a partial update.
func (c *Client) UpdateTask(ctx context.Context, id string, patch models.Patch) (*models.Task, error) {
	var updated models.Task
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// SyncTasks upserts or deletes a batch and returns the authoritative set.
func (c *Client) SyncTasks(ctx context.Context, items []models.SyncItem) (*models.SyncResult, error) {
	body := struct {
		Tasks []models.SyncItem `json:"tasks"`
	}{Tasks: items}
	var result models.SyncResult
	if err := c.do(ctx, http.MethodPost, "/tasks/sync", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}

	var base error
	switch code {
	case http.StatusUnauthorized:
		base = ErrUnauthenticated
	case http.StatusNotFound:
		base = ErrNotFound
	case http.StatusConflict:
		base = ErrConflict
	case http.StatusBadRequest:
		base = ErrBadRequest
	default:
		return fmt.Errorf("API error (%d): %s", code, msg)
	}
	return fmt.Errorf("%w: %s", base, msg)
}
