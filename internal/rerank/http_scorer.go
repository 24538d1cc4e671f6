package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPScorer calls an external cross-encoder service speaking a simple
// JSON contract: POST {query, passages[]} → {scores[]}.
//
// A circuit breaker sits in front of the service so a dead reranker fails
// fast instead of burning its full timeout on every request; an open
// breaker surfaces as a scorer error and takes the normal fallback path.
type HTTPScorer struct {
	url     string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPScorer creates an HTTPScorer for the given service URL.
func NewHTTPScorer(url, apiKey string) *HTTPScorer {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "reranker",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPScorer{
		url:     url,
		apiKey:  apiKey,
		client:  &http.Client{},
		breaker: breaker,
	}
}

type scoreRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// Score sends the (query, passage) pairs and returns one score per passage.
func (s *HTTPScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		return s.score(ctx, query, passages)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

func (s *HTTPScorer) score(ctx context.Context, query string, passages []string) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{Query: query, Passages: passages})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rerank: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank: service returned %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var out scoreResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("rerank: unmarshal response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("rerank: service error: %s", out.Error)
	}
	return out.Scores, nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
