// Package client calls a running cadence worker over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultTimeout bounds one trigger call. A refinement run embeds every
// opted-in user's titles, so it is far longer than a health probe.
const DefaultTimeout = 10 * time.Minute

// Errors mapped from trigger status codes.
var (
	ErrUnauthorized  = errors.New("worker rejected the cron secret")
	ErrRunInProgress = errors.New("worker reports a refinement run in progress")
)

// RefineResult is the worker's response to a successful trigger.
type RefineResult struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Message   string `json:"message"`
	JobID     string `json:"job_id,omitempty"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// Health is the worker's /api/health response.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Client talks to one worker.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// New returns a client for the worker at baseURL, e.g. http://127.0.0.1:37900.
func New(baseURL, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    httpClient,
	}
}

// ForPort returns a client for a worker on the loopback interface.
func ForPort(port int, secret string) *Client {
	return New(fmt.Sprintf("http://127.0.0.1:%d", port), secret, nil)
}

// Refine triggers one refinement run and waits for its result.
func (c *Client) Refine(ctx context.Context) (*RefineResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/cron/refine-habits", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trigger refinement: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusConflict:
		return nil, ErrRunInProgress
	default:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return nil, fmt.Errorf("refinement failed: %s", body.Error)
	}

	var result RefineResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode refinement result: %w", err)
	}
	return &result, nil
}

// Health reports whether the worker answers its health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker health: %s", resp.Status)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}
