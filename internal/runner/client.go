package runner

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

	"autoheal/internal/healing"
)

// Client talks to the automation runner REST API. It implements
// healing.Runner.
type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{BaseURL: baseURL, Token: token, Client: &http.Client{Timeout: timeout}}
}

type startRequest struct {
	Document   string            `json:"document"`
	Parameters map[string]string `json:"parameters"`
}

type startResponse struct {
	ExecutionID string `json:"execution_id"`
}

type statusResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

func (c *Client) Start(ctx context.Context, document string, params map[string]string) (string, error) {
	if strings.TrimSpace(document) == "" {
		return "", errors.New("document required")
	}
	var resp startResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/executions", startRequest{Document: document, Parameters: params}, &resp); err != nil {
		return "", err
	}
	if resp.ExecutionID == "" {
		return "", errors.New("missing execution_id")
	}
	return resp.ExecutionID, nil
}

func (c *Client) Status(ctx context.Context, executionID string) (healing.JobStatus, error) {
	if executionID == "" {
		return "", errors.New("execution id required")
	}
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/executions/"+executionID, nil, &resp); err != nil {
		return "", err
	}
	if resp.Status == "" {
		return "", errors.New("missing status")
	}
	return healing.JobStatus(resp.Status), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, req any, out any) error {
	respBytes, err := c.doRequest(ctx, method, path, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBytes, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, req any) ([]byte, error) {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 5 * time.Second}
	}
	var body io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	request, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if req != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		request.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.Client.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("runner status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return io.ReadAll(resp.Body)
}
