// Package client is a small SDK for execpool's admin HTTP+WebSocket
// API: submit a task, poll or wait for its handle, cancel it, and
// optionally stream the live event feed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to one execpool-server instance.
type Client struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// New constructs a Client against baseURL (e.g. "http://localhost:8090").
func New(baseURL string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), opts: o}
}

// TaskResult mirrors the admin API's JSON view of a handle.
type TaskResult struct {
	ID    string      `json:"id"`
	State string      `json:"state"`
	Value interface{} `json:"value,omitempty"`
	Err   string      `json:"err,omitempty"`
	Logs  string      `json:"logs,omitempty"`
}

// Submit posts a new task and returns its handle immediately, without
// waiting for it to run.
func (c *Client) Submit(ctx context.Context, taskType string, args []interface{}, kwargs map[string]interface{}) (*TaskResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"type": taskType, "args": args, "kwargs": kwargs,
	})
	if err != nil {
		return nil, fmt.Errorf("client: marshal request: %w", err)
	}

	var result TaskResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get polls the current state of a previously submitted task.
func (c *Client) Get(ctx context.Context, taskID string) (*TaskResult, error) {
	var result TaskResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+taskID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel cancels a task still waiting to be picked up by a worker.
func (c *Client) Cancel(ctx context.Context, taskID string) (*TaskResult, error) {
	var result TaskResult
	if err := c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+taskID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Wait polls Get until it reports a terminal state, Get fails, or ctx is
// done. The server drops a task as soon as it finishes, so a finished
// task usually ends the wait with a not-found error from Get rather
// than a terminal result.
func (c *Client) Wait(ctx context.Context, taskID string, pollInterval time.Duration) (*TaskResult, error) {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		r, err := c.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch r.State {
		case "done", "failed", "cancelled":
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("client: %s %s: %s (%s)", method, path, apiErr.Message, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}

// ConnectEvents opens the WebSocket event feed. Call Events afterward
// to read from it.
func (c *Client) ConnectEvents(ctx context.Context) error {
	if c.ws != nil && c.ws.Connected() {
		return nil
	}
	c.ws = newWebSocketClient(c.baseURL, c.opts.apiKey)
	return c.ws.Connect(ctx)
}

// Events returns the channel of live events. ConnectEvents must be
// called first; otherwise this returns a closed channel.
func (c *Client) Events() <-chan *Event {
	if c.ws == nil {
		ch := make(chan *Event)
		close(ch)
		return ch
	}
	return c.ws.Events()
}

// Close releases the WebSocket connection, if one was opened.
func (c *Client) Close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}
