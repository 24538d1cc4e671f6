package shiori

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Shiori server (e.g. "http://localhost:8080").
	BaseURL string

	// Token is the bearer JWT identifying the caller's user and tenant.
	Token string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 60-second timeout is used. Streaming requests always use a
	// client without a response timeout.
	HTTPClient *http.Client

	// Timeout applies to blocking API requests. Defaults to 60 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Shiori query API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL   string
	token     string
	client    *http.Client
	streaming *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or Token is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("shiori: BaseURL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("shiori: Token is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	// The SSE connection stays open for the lifetime of the synthesis, so
	// it cannot share the blocking client's response timeout. The request
	// context bounds it instead.
	streaming := &http.Client{Transport: httpClient.Transport}

	return &Client{
		baseURL:   baseURL,
		token:     cfg.Token,
		client:    httpClient,
		streaming: streaming,
	}, nil
}

// Ask submits a question and blocks until the final answer.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	var resp Answer
	if err := c.post(ctx, "/v1/ask", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AskStream submits a question and returns a channel of stream events.
// The channel closes after a terminal done or error event, or when ctx is
// cancelled. Transport failures mid-stream surface as a synthetic error
// event before the channel closes.
func (c *Client) AskStream(ctx context.Context, req AskRequest) (<-chan StreamEvent, error) {
	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("shiori: marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ask/stream", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("shiori: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.streaming.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("shiori: POST /v1/ask/stream: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("shiori: read error response: %w", readErr)
		}
		return nil, parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	out := make(chan StreamEvent)
	go c.readEvents(resp.Body, out)
	return out, nil
}

// readEvents parses SSE frames from body and forwards the JSON envelopes.
func (c *Client) readEvents(body io.ReadCloser, out chan<- StreamEvent) {
	defer close(out)
	defer func() { _ = body.Close() }()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev StreamEvent
			if err := json.Unmarshal([]byte(data.String()), &ev); err == nil {
				out <- ev
			}
			data.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		payload, _ := json.Marshal(ErrorData{Code: "stream_interrupted", Message: err.Error()})
		out <- StreamEvent{Type: EventError, Timestamp: time.Now().UTC(), Data: payload}
	}
}

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has an invalid token.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("shiori: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shiori: GET /healthz: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var health HealthResponse
	if err := handleResponse(resp, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("shiori: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("shiori: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("shiori: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("shiori: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("shiori: decode response: %w", err)
	}
	return nil
}

// errorBody is the server's standard error envelope.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Error
		apiErr.RequestID = envelope.RequestID
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
