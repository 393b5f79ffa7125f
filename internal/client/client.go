// Package client is an HTTP client for the agent events API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/agent-events/internal/filter"
)

const (
	eventsPath = "/api/agent-events"
	configPath = "/api/agent-configuration"
)

// APIError is a non-success response from the service.
type APIError struct {
	StatusCode int
	Message    string
	// Published is the number of events accepted before an ingest failed.
	Published int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client talks to one agent events service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a Client. token is sent as a bearer token when non-empty.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Query returns the events matching args.
func (c *Client) Query(ctx context.Context, args filter.Args) ([]json.RawMessage, error) {
	url := c.baseURL + eventsPath
	if q := args.Values(); len(q) > 0 {
		url += "?" + q.Encode()
	}

	var events []json.RawMessage
	if err := c.do(ctx, http.MethodGet, url, nil, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []json.RawMessage{}
	}
	return events, nil
}

// Ingest posts a batch of raw events.
func (c *Client) Ingest(ctx context.Context, events []json.RawMessage) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+eventsPath, body, nil)
}

// AgentConfiguration fetches the current agent configuration.
func (c *Client) AgentConfiguration(ctx context.Context) (json.RawMessage, error) {
	var cfg json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.baseURL+configPath, nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateAgentConfiguration replaces the agent configuration.
func (c *Client) UpdateAgentConfiguration(ctx context.Context, cfg json.RawMessage) error {
	return c.do(ctx, http.MethodPut, c.baseURL+configPath, cfg, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error     string `json:"error"`
		Published int    `json:"published"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Error
		apiErr.Published = body.Published
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
