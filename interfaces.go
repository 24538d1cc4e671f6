package shiori

import "context"

// Extension interfaces for embedding consumers. Implementations replace
// the corresponding built-in subsystem via the With* options.

// EmbeddingProvider converts query text to a dense vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// RerankScorer scores (query, passage) pairs, one score per passage in
// input order. Replaces the built-in HTTP cross-encoder client.
type RerankScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// TokenCounter converts text to token counts for context budgeting.
type TokenCounter interface {
	Count(text string) int
}
