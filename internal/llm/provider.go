// Package llm generates answers from packed context through interchangeable
// model providers, with retries, provider fallback, and bounded streaming.
package llm

import (
	"context"

	"github.com/shiori-ai/shiori/internal/stream"
)

// Provider tags understood by the client pool.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderAzure     = "azure_openai"
	ProviderVllm      = "vllm"
)

// Request is one generation call, prompt already rendered.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Completion is the provider-agnostic generation result.
type Completion struct {
	Text         string
	TokensUsed   int
	Model        string
	FinishReason stream.FinishReason
}

// EmitFunc receives incremental text during streaming generation. A non-nil
// return aborts the stream; the provider closes its reader and returns the
// error.
type EmitFunc func(text string) error

// Provider is a single concrete LLM backend. Implementations honor ctx
// cancellation on both call styles.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Completion, error)
	CompleteStreaming(ctx context.Context, req Request, emit EmitFunc) (Completion, error)
}

// callError carries the HTTP status of a failed provider call so the retry
// policy can distinguish transport and server errors from request errors.
type callError struct {
	status int
	err    error
}

func (e *callError) Error() string { return e.err.Error() }
func (e *callError) Unwrap() error { return e.err }

// retryable reports whether the failure is worth retrying: transport
// errors (no status) and 5xx responses.
func (e *callError) retryable() bool {
	return e.status == 0 || e.status >= 500
}
