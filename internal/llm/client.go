package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

// Client wraps providers with per-call timeouts, retries, and the
// provider fallback chain.
type Client struct {
	pool   *Pool
	logger *slog.Logger
}

// NewClient creates a Client drawing providers from the pool.
func NewClient(pool *Pool, logger *slog.Logger) *Client {
	return &Client{pool: pool, logger: logger}
}

// Generate runs one non-streaming completion through the configured
// provider chain: primary with retries, then each fallback with retries.
// All exhausted yields LLMProviderError wrapping the last failure.
func (c *Client) Generate(ctx context.Context, tenantID string, cfg config.LLMConfig, req Request) (Completion, error) {
	var lastErr error
	for _, pc := range providerChain(cfg) {
		provider, err := c.pool.Get(tenantID, pc.Provider)
		if err != nil {
			lastErr = err
			continue
		}
		out, err := c.callWithRetry(ctx, provider, pc, withModel(req, pc), nil)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("llm: provider exhausted, trying next",
			"provider", pc.Provider, "model", pc.Model, "error", err)
	}
	return Completion{}, &model.LLMProviderError{Provider: cfg.Provider, Err: lastErr}
}

// GenerateStreaming runs a streaming completion through the provider
// chain, forwarding text fragments to emit. When every provider fails in
// streaming mode, one final non-streaming attempt is made on the primary;
// its whole text is delivered through emit in a single call.
func (c *Client) GenerateStreaming(ctx context.Context, tenantID string, cfg config.LLMConfig, req Request, emit EmitFunc) (Completion, error) {
	var lastErr error
	for _, pc := range providerChain(cfg) {
		provider, err := c.pool.Get(tenantID, pc.Provider)
		if err != nil {
			lastErr = err
			continue
		}
		out, err := c.callWithRetry(ctx, provider, pc, withModel(req, pc), emit)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, errEmitAborted) {
			return Completion{}, lastErr
		}
		c.logger.Warn("llm: streaming provider exhausted, trying next",
			"provider", pc.Provider, "model", pc.Model, "error", err)
	}

	// Streaming exhausted everywhere; degrade to one blocking call.
	if provider, err := c.pool.Get(tenantID, cfg.Provider); err == nil && ctx.Err() == nil {
		c.logger.Warn("llm: falling back to non-streaming completion", "provider", cfg.Provider)
		out, err := c.completeOnce(ctx, provider, cfg, withModel(req, cfg), nil)
		if err == nil {
			if emitErr := emit(out.Text); emitErr != nil {
				return Completion{}, emitErr
			}
			return out, nil
		}
		lastErr = err
	}
	return Completion{}, &model.LLMProviderError{Provider: cfg.Provider, Err: lastErr}
}

// errEmitAborted marks a stream stopped by the consumer, never retried.
var errEmitAborted = errors.New("llm: emit aborted")

func (c *Client) callWithRetry(ctx context.Context, provider Provider, cfg config.LLMConfig, req Request, emit EmitFunc) (Completion, error) {
	// Streaming retries must not replay fragments the consumer already
	// received. Once any text is emitted, a failure stops the attempt.
	emitted := false
	var guardedEmit EmitFunc
	if emit != nil {
		guardedEmit = func(text string) error {
			emitted = true
			if err := emit(text); err != nil {
				return errors.Join(errEmitAborted, err)
			}
			return nil
		}
	}

	var out Completion
	operation := func() error {
		var err error
		out, err = c.completeOnce(ctx, provider, cfg, req, guardedEmit)
		if err == nil {
			return nil
		}
		var ce *callError
		if emitted || errors.Is(err, errEmitAborted) ||
			(errors.As(err, &ce) && !ce.retryable()) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)

	err := backoff.Retry(operation, policy)
	return out, err
}

func (c *Client) completeOnce(ctx context.Context, provider Provider, cfg config.LLMConfig, req Request, emit EmitFunc) (Completion, error) {
	callCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var out Completion
	var err error
	if emit != nil {
		out, err = provider.CompleteStreaming(callCtx, req, emit)
	} else {
		out, err = provider.Complete(callCtx, req)
	}
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, &model.TimeoutError{Stage: "llm"}
	}
	return out, err
}

// providerChain expands the primary plus its fallbacks into the ordered
// call list. Fallback entries inherit the primary's bounds when their own
// are zero; nested fallbacks are ignored.
func providerChain(cfg config.LLMConfig) []config.LLMConfig {
	chain := []config.LLMConfig{cfg}
	for _, fb := range cfg.Fallbacks {
		fb.Fallbacks = nil
		if fb.Timeout <= 0 {
			fb.Timeout = cfg.Timeout
		}
		if fb.MaxRetries == 0 {
			fb.MaxRetries = cfg.MaxRetries
		}
		if fb.MaxOutputTokens <= 0 {
			fb.MaxOutputTokens = cfg.MaxOutputTokens
		}
		chain = append(chain, fb)
	}
	return chain
}

func withModel(req Request, cfg config.LLMConfig) Request {
	req.Model = cfg.Model
	return req
}
