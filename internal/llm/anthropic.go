package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/shiori-ai/shiori/internal/stream"
)

// AnthropicProvider speaks the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	return params
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	msg, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return Completion{}, p.wrap(err)
	}
	return Completion{
		Text:         messageText(msg),
		TokensUsed:   int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		Model:        string(msg.Model),
		FinishReason: stream.NormalizeFinishReason(string(msg.StopReason)),
	}, nil
}

func (p *AnthropicProvider) CompleteStreaming(ctx context.Context, req Request, emit EmitFunc) (Completion, error) {
	s := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer s.Close()

	var msg anthropic.Message
	for s.Next() {
		event := s.Current()
		if err := msg.Accumulate(event); err != nil {
			return Completion{}, &callError{status: 0, err: fmt.Errorf("anthropic: accumulate: %w", err)}
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				if err := emit(delta.Text); err != nil {
					return Completion{}, err
				}
			}
		}
	}
	if err := s.Err(); err != nil {
		return Completion{}, p.wrap(err)
	}

	return Completion{
		Text:         messageText(&msg),
		TokensUsed:   int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		Model:        string(msg.Model),
		FinishReason: stream.NormalizeFinishReason(string(msg.StopReason)),
	}, nil
}

func messageText(msg *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func (p *AnthropicProvider) wrap(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &callError{status: apierr.StatusCode, err: fmt.Errorf("anthropic: %w", err)}
	}
	return &callError{status: 0, err: fmt.Errorf("anthropic: %w", err)}
}
