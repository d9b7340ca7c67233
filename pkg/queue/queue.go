package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// PendingResponse is the body of the pending-tasks endpoint
type PendingResponse struct {
	PendingTasks int `json:"pendingTasks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPClient asks a work queue service how many tasks are waiting for a pool
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPClient creates a client for the queue service at baseURL
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PendingTasks returns the backlog for a pool
func (c *HTTPClient) PendingTasks(ctx context.Context, provisionerID, pool string) (int, error) {
	endpoint := fmt.Sprintf("%s/v1/pending/%s/%s", c.BaseURL, url.PathEscape(provisionerID), url.PathEscape(pool))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return 0, fmt.Errorf("pending tasks for %s: %s", pool, errResp.Error)
		}
		return 0, fmt.Errorf("pending tasks for %s: HTTP %d: %s", pool, resp.StatusCode, body)
	}

	var out PendingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("parsing response: %w", err)
	}
	if out.PendingTasks < 0 {
		return 0, fmt.Errorf("pending tasks for %s: negative count %d", pool, out.PendingTasks)
	}
	return out.PendingTasks, nil
}

// Static reports a fixed backlog per pool. Pools not listed have none.
type Static map[string]int

// PendingTasks returns the configured backlog for pool
func (s Static) PendingTasks(ctx context.Context, provisionerID, pool string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s[pool], nil
}
