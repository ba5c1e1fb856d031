package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEngine calls the analysis service at BaseURL + /v1/analyze.
type HTTPEngine struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPEngine(baseURL, token string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{BaseURL: baseURL, Token: token, Client: &http.Client{Timeout: timeout}}
}

func (e *HTTPEngine) Analyze(ctx context.Context, req Request) (json.RawMessage, error) {
	if e.Client == nil {
		e.Client = &http.Client{Timeout: 30 * time.Second}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(e.BaseURL, "/")+"/v1/analyze", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	if e.Token != "" {
		request.Header.Set("Authorization", "Bearer "+e.Token)
	}
	resp, err := e.Client.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("analysis status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
