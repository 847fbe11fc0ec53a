package forgemcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Builds and test runs can take a while, so it is longer
// than a typical API client default.
const DefaultHTTPTimeout = 5 * time.Minute

// Client wraps the HTTP interactions with the Forge MCP REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// Payload mirrors the normalized tool result returned by the server.
type Payload struct {
	Tool       string         `json:"tool"`
	Success    bool           `json:"success"`
	Params     map[string]any `json:"params,omitempty"`
	Stdout     string         `json:"stdout,omitempty"`
	Stderr     string         `json:"stderr,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Advice     string         `json:"advice,omitempty"`
	Anvil      *AnvilStatus   `json:"anvil,omitempty"`
	GasDeltas  []GasDelta     `json:"gas_deltas,omitempty"`
	SessionRef string         `json:"session,omitempty"`
	Sender     string         `json:"sender,omitempty"`
}

// AnvilStatus describes the state of the managed chain simulator.
type AnvilStatus struct {
	Running     bool   `json:"running"`
	PID         int    `json:"pid,omitempty"`
	RPCURL      string `json:"rpc_url,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// GasDelta is one entry of a gas snapshot comparison.
type GasDelta struct {
	Test    string  `json:"test"`
	Delta   int64   `json:"delta"`
	Percent float64 `json:"percent"`
}

// Invocation is the server-side record of an asynchronous tool invocation.
type Invocation struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	Params     map[string]any `json:"params,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *Payload       `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// SubmitRequest describes an asynchronous invocation submission.
type SubmitRequest struct {
	ID         string         `json:"id,omitempty"`
	Tool       string         `json:"tool"`
	Params     map[string]any `json:"params,omitempty"`
	MaxRetries int            `json:"max_retries,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("forgemcp api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("forgemcp api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Forge MCP API.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Tools lists the names of the registered tools.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	var body struct {
		Tools []string `json:"tools"`
	}
	if err := c.get(ctx, "/api/v1/tools", &body); err != nil {
		return nil, err
	}
	return body.Tools, nil
}

// Invoke runs a tool synchronously and returns its normalized payload.
// Tool level failures are reported inside the payload, not as an error.
func (c *Client) Invoke(ctx context.Context, tool string, params map[string]any) (*Payload, error) {
	var payload Payload
	if err := c.post(ctx, "/api/v1/tools/"+url.PathEscape(tool), params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Submit enqueues a tool invocation for asynchronous execution.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Invocation, error) {
	var record Invocation
	if err := c.post(ctx, "/api/v1/invocations", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetInvocation fetches the current state of an asynchronous invocation.
func (c *Client) GetInvocation(ctx context.Context, id string) (*Invocation, error) {
	var record Invocation
	if err := c.get(ctx, "/api/v1/invocations/"+url.PathEscape(id), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListInvocations returns the most recent invocation records.
func (c *Client) ListInvocations(ctx context.Context, limit int) ([]Invocation, error) {
	endpoint := "/api/v1/invocations"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var records []Invocation
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// WaitForInvocation polls until the invocation reaches a terminal status or
// the context is cancelled.
func (c *Client) WaitForInvocation(ctx context.Context, id string, interval time.Duration) (*Invocation, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		record, err := c.GetInvocation(ctx, id)
		if err != nil {
			return nil, err
		}
		if record.Status == "succeeded" || record.Status == "failed" {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ticker.C:
		}
	}
}

// AnvilStatus reports the state of the managed anvil process via the
// dedicated status endpoint.
func (c *Client) AnvilStatus(ctx context.Context) (*Payload, error) {
	var payload Payload
	if err := c.get(ctx, "/api/v1/anvil/status", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
