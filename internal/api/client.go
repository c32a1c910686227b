package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"socialgo/internal/domain"
)

const defaultRequestTimeout = 15 * time.Second

// Client is the REST fetch adapter. List endpoints return
// {data, pagination{page, total_pages, total}}, entity endpoints {data},
// mutation endpoints {success, error, data}.
type Client struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    *slog.Logger
}

type Config struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "api")
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		client:    client,
		logger:    logger,
	}
}

type pagination struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total"`
}

type listEnvelope struct {
	Data       []map[string]any `json:"data"`
	Pagination pagination       `json:"pagination"`
}

type entityEnvelope struct {
	Data map[string]any `json:"data"`
}

type mutationEnvelope struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Data    map[string]any `json:"data"`
}

// FetchPage fetches one page of a list endpoint.
func (c *Client) FetchPage(ctx context.Context, path string, filters map[string]string, page int) ([]map[string]any, domain.Pagination, error) {
	query := url.Values{}
	for k, v := range filters {
		query.Set(k, v)
	}
	query.Set("page", strconv.Itoa(page))

	body, err := c.get(ctx, path, query)
	if err != nil {
		return nil, domain.Pagination{}, err
	}

	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("decode list response: %w", err)
	}

	return envelope.Data, domain.Pagination{
		Page:       envelope.Pagination.Page,
		TotalPages: envelope.Pagination.TotalPages,
		Total:      envelope.Pagination.Total,
	}, nil
}

// FetchEntity fetches a single entity endpoint.
func (c *Client) FetchEntity(ctx context.Context, path string) (map[string]any, error) {
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var envelope entityEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode entity response: %w", err)
	}

	return envelope.Data, nil
}

// Mutate posts a mutation and returns the authoritative server data. A
// response with success=false is an error; the caller rolls the optimistic
// delta back.
func (c *Client) Mutate(ctx context.Context, kind string, targetID string, payload map[string]any) (map[string]any, error) {
	path, err := mutationPath(kind, targetID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode mutation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build mutation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var envelope mutationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode mutation response: %w", err)
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "unspecified"
		}

		return nil, fmt.Errorf("server rejected %s: %s", kind, msg)
	}

	return envelope.Data, nil
}

func mutationPath(kind, targetID string) (string, error) {
	escaped := url.PathEscape(targetID)
	switch kind {
	case "toggle_like":
		return "/posts/" + escaped + "/like", nil
	case "add_comment":
		return "/posts/" + escaped + "/comments", nil
	case "friend_accept":
		return "/friends/requests/" + escaped + "/accept", nil
	case "friend_reject":
		return "/friends/requests/" + escaped + "/reject", nil
	case "mark_notification_read":
		return "/notifications/" + escaped + "/read", nil
	case "mark_conversation_read":
		return "/conversations/" + escaped + "/read", nil
	default:
		return "", fmt.Errorf("unsupported mutation kind: %s", kind)
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	return c.do(req)
}

func (c *Client) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	c.logger.Debug("request", "method", req.Method, "url", req.URL.String())
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, req.URL.Path)
	}

	return body, nil
}
