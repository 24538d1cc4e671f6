// Package retrieval provides the hybrid retrieval fan-out: concurrent dense
// and lexical search against pluggable backends, with tenant and ACL
// filtering applied inside every backend query.
package retrieval

import (
	"context"

	"github.com/shiori-ai/shiori/internal/model"
)

// Scope is the mandatory access filter for every backend query. Documents
// outside the scope are never returned, regardless of score.
type Scope struct {
	TenantID   string
	Principals []string // userID ∪ groupIDs; a document matches if acl ∩ principals ≠ ∅

	// Filter holds extra conjunctive keyword predicates from the caller.
	Filter map[string]string
}

// Embedder generates the query embedding for dense search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// VectorStore is a dense similarity search backend.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// SearchVectors returns up to limit hits ranked by native similarity,
	// restricted to the scope. Rank is 1-based in the returned order.
	SearchVectors(ctx context.Context, embedding []float32, scope Scope, limit int) ([]model.RetrievalHit, error)
}

// LexicalIndex is a keyword/full-text search backend.
// Implementations must be safe for concurrent use.
type LexicalIndex interface {
	// SearchText returns up to limit hits ranked by native text relevance,
	// restricted to the scope. Rank is 1-based in the returned order.
	SearchText(ctx context.Context, query string, scope Scope, limit int) ([]model.RetrievalHit, error)
}
