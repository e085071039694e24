// Package langgraph is an HTTP client for the thread and run API of a
// deployed agent graph.
package langgraph

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
)

const (
	defaultBaseURL   = "http://localhost:2024"
	defaultUserAgent = "agent-inbox/1.0"
)

var _ ports.ThreadService = (*Client)(nil)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the deployment URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client talks to one deployment.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new deployment client. An empty apiKey sends no
// credentials, which local development servers accept.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForTarget creates a client for target. It matches inbox.ClientFactory.
func ForTarget(target domain.Target) (ports.ThreadService, error) {
	if target.DeploymentURL == "" {
		return nil, domain.ErrConfiguration(fmt.Sprintf("inbox %s has no deployment url", target.ID)).
			WithCode(domain.ErrorCodeTargetNotConfigured)
	}
	if _, err := url.ParseRequestURI(target.DeploymentURL); err != nil {
		return nil, domain.ErrConfiguration(fmt.Sprintf("inbox %s: invalid deployment url: %v", target.ID, err))
	}
	return NewClient(target.APIKey, WithBaseURL(target.DeploymentURL)), nil
}

// Search lists threads.
func (c *Client) Search(ctx context.Context, req ports.SearchRequest) ([]domain.Thread, error) {
	var threads []domain.Thread
	if err := c.do(ctx, http.MethodPost, "/threads/search", req, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// Get returns one thread.
func (c *Client) Get(ctx context.Context, threadID string) (*domain.Thread, error) {
	var thread domain.Thread
	if err := c.do(ctx, http.MethodGet, threadPath(threadID, ""), nil, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// GetState returns the current state of a thread.
func (c *Client) GetState(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	var state domain.ThreadState
	if err := c.do(ctx, http.MethodGet, threadPath(threadID, "/state"), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// UpdateState writes to the state of a thread.
func (c *Client) UpdateState(ctx context.Context, threadID string, update ports.StateUpdate) error {
	return c.do(ctx, http.MethodPost, threadPath(threadID, "/state"), update, nil)
}

// CreateRun schedules a background run on a thread.
func (c *Client) CreateRun(ctx context.Context, threadID string, req ports.RunRequest) (*domain.Run, error) {
	var run domain.Run
	if err := c.do(ctx, http.MethodPost, threadPath(threadID, "/runs"), req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// StreamRun starts a run and returns its server-sent events.
func (c *Client) StreamRun(ctx context.Context, threadID string, req ports.RunRequest) (<-chan ports.StreamResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+threadPath(threadID, "/runs/stream"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, parseError(resp.StatusCode, respBody)
	}

	out := make(chan ports.StreamResult)
	go streamReader(ctx, resp.Body, out)
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

func threadPath(threadID, suffix string) string {
	return "/threads/" + url.PathEscape(threadID) + suffix
}

// errorResponse covers the error bodies the server produces.
type errorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func parseError(status int, body []byte) *domain.APIError {
	msg := strings.TrimSpace(string(body))

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		var detail string
		switch {
		case json.Unmarshal(errResp.Detail, &detail) == nil && detail != "":
			msg = detail
		case len(errResp.Detail) > 0:
			msg = string(errResp.Detail)
		case errResp.Message != "":
			msg = errResp.Message
		case errResp.Error != "":
			msg = errResp.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return domain.FromStatus(status, msg)
}

// streamReader decodes server-sent events from body. An event ends at a
// blank line; multiple data lines are joined with newlines.
func streamReader(ctx context.Context, body io.ReadCloser, out chan<- ports.StreamResult) {
	defer close(out)
	defer body.Close()

	send := func(r ports.StreamResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var (
		event string
		data  []string
	)
	flush := func() bool {
		if event == "" && len(data) == 0 {
			return true
		}
		ev := &domain.StreamEvent{Event: event}
		if len(data) > 0 {
			ev.Data = json.RawMessage(strings.Join(data, "\n"))
		}
		event, data = "", nil
		return send(ports.StreamResult{Event: ev})
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if !flush() {
				return
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() == nil {
			send(ports.StreamResult{Err: fmt.Errorf("stream read error: %w", err)})
		}
		return
	}
	flush()
}
