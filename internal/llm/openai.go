package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/shiori-ai/shiori/internal/stream"
)

// OpenAIProvider speaks the OpenAI chat completions API. With a custom
// base URL it also serves Azure OpenAI deployments and vLLM endpoints,
// which expose the same surface.
type OpenAIProvider struct {
	name   string
	client openai.Client
}

// NewOpenAIProvider creates a provider for api.openai.com.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		name:   ProviderOpenAI,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// NewCompatibleProvider creates a provider for an OpenAI-compatible
// endpoint (Azure OpenAI, vLLM) under the given name tag.
func NewCompatibleProvider(name, baseURL, apiKey string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIProvider{name: name, client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) params(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return Completion{}, p.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &callError{status: 0, err: fmt.Errorf("%s: empty choices", p.name)}
	}
	choice := resp.Choices[0]
	return Completion{
		Text:         choice.Message.Content,
		TokensUsed:   int(resp.Usage.TotalTokens),
		Model:        resp.Model,
		FinishReason: stream.NormalizeFinishReason(choice.FinishReason),
	}, nil
}

func (p *OpenAIProvider) CompleteStreaming(ctx context.Context, req Request, emit EmitFunc) (Completion, error) {
	params := p.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	s := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer s.Close()

	var acc openai.ChatCompletionAccumulator
	for s.Next() {
		chunk := s.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if err := emit(delta); err != nil {
					return Completion{}, err
				}
			}
		}
	}
	if err := s.Err(); err != nil {
		return Completion{}, p.wrap(err)
	}

	out := Completion{
		TokensUsed: int(acc.Usage.TotalTokens),
		Model:      acc.Model,
	}
	if len(acc.Choices) > 0 {
		out.Text = acc.Choices[0].Message.Content
		out.FinishReason = stream.NormalizeFinishReason(acc.Choices[0].FinishReason)
	}
	return out, nil
}

func (p *OpenAIProvider) wrap(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &callError{status: apierr.StatusCode, err: fmt.Errorf("%s: %w", p.name, err)}
	}
	return &callError{status: 0, err: fmt.Errorf("%s: %w", p.name, err)}
}
