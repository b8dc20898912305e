// Package persistence is a thin typed wrapper over the externally
// owned REST API for plans, tasks, skills, logs, users, and messages.
// No durable storage lives here — that is the persistence service's
// job, per spec.md's explicit Non-goal.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a configured HTTP client against the persistence service.
type Client struct {
	baseURL      string
	http         *http.Client
	callTimeout  time.Duration
	healthTimeout time.Duration
}

// New builds a Client.
func New(baseURL string, callTimeout, healthTimeout time.Duration) *Client {
	return &Client{
		baseURL:       baseURL,
		http:          &http.Client{},
		callTimeout:   callTimeout,
		healthTimeout: healthTimeout,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("persistence request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("persistence request %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out, c.callTimeout)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out, c.callTimeout)
}

func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, out, c.callTimeout)
}
