package retrieval

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIEmbedder generates query embeddings through an OpenAI-compatible
// embeddings endpoint (OpenAI itself, or any self-hosted server speaking
// the same wire format via baseURL).
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder. baseURL may be empty for the
// OpenAI default endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dims int) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
		dims:   dims,
	}
}

// Dimensions returns the embedding vector size. A deployment constant:
// it must match the dimensionality of the indexed corpus.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// Embed generates a single query embedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("retrieval: embedding response empty")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, f := range raw {
		vec[i] = float32(f)
	}
	if e.dims > 0 && len(vec) != e.dims {
		return nil, fmt.Errorf("retrieval: embedding dimension mismatch: got %d, want %d", len(vec), e.dims)
	}
	return vec, nil
}

// NoopEmbedder returns zero vectors. Used in tests and lexical-only setups.
type NoopEmbedder struct {
	Dims int
}

// Dimensions returns the configured vector size.
func (e *NoopEmbedder) Dimensions() int { return e.Dims }

// Embed returns a zero vector.
func (e *NoopEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, e.Dims), nil
}
