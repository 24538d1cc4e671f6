// Package rerank rescoring the top fused candidates with a cross-encoder
// service, with a deterministic fusion-order fallback when the service is
// unavailable.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

// Scorer is the cross-encoder capability: one scalar relevance score per
// (query, passage) pair, in input order. The core does not care which model
// produces the scores.
type Scorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Output is the rerank stage result. Bypassed is observable so the
// orchestrator can record the degradation in audit and warnings.
type Output struct {
	Hits     []model.RerankedHit
	Bypassed bool
}

// Reranker applies cross-encoder rescoring per tenant config.
type Reranker struct {
	scorer Scorer // nil = no service deployed; always bypass
	logger *slog.Logger
}

// New creates a Reranker. scorer may be nil when no reranker service is
// configured; rerank then degrades to the fusion-order passthrough.
func New(scorer Scorer, logger *slog.Logger) *Reranker {
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank scores the top cfg.TopIn fused hits and returns the top
// cfg.TopOut by rerank score.
//
// Disabled tenants get a pure passthrough: the first TopOut fused hits
// with rerankScore := fusionScore. On scorer failure with FallbackOnError
// the same passthrough applies and Bypassed is set; with fallback disabled
// the failure propagates as RerankerError.
func (r *Reranker) Rerank(ctx context.Context, query string, fused []model.FusedHit, cfg config.RerankerConfig) (Output, error) {
	if !cfg.Enabled || r.scorer == nil {
		return passthrough(fused, cfg.TopOut), nil
	}

	in := fused
	if len(in) > cfg.TopIn {
		in = in[:cfg.TopIn]
	}
	if len(in) == 0 {
		return Output{Hits: []model.RerankedHit{}}, nil
	}

	passages := make([]string, len(in))
	for i, h := range in {
		passages[i] = h.Content
	}

	scoreCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	scores, err := r.scorer.Score(scoreCtx, query, passages)
	if err != nil || len(scores) != len(in) {
		if err == nil {
			err = errScoreCountMismatch(len(scores), len(in))
		}
		if !cfg.FallbackOnError {
			return Output{}, &model.RerankerError{Err: err}
		}
		r.logger.Warn("rerank: scorer failed, falling back to fusion order", "error", err)
		out := passthrough(fused, cfg.TopOut)
		out.Bypassed = true
		return out, nil
	}

	hits := make([]model.RerankedHit, len(in))
	for i, h := range in {
		hits[i] = model.RerankedHit{FusedHit: h, RerankScore: scores[i]}
	}
	sortReranked(hits)
	if len(hits) > cfg.TopOut {
		hits = hits[:cfg.TopOut]
	}
	for i := range hits {
		hits[i].FinalRank = i + 1
	}
	return Output{Hits: hits}, nil
}

// passthrough returns the first topOut fused hits in fusion order with
// rerankScore := fusionScore.
func passthrough(fused []model.FusedHit, topOut int) Output {
	n := len(fused)
	if n > topOut {
		n = topOut
	}
	hits := make([]model.RerankedHit, n)
	for i := 0; i < n; i++ {
		hits[i] = model.RerankedHit{
			FusedHit:    fused[i],
			RerankScore: fused[i].FusionScore,
			FinalRank:   i + 1,
		}
	}
	return Output{Hits: hits}
}

// sortReranked orders by rerank score descending; ties break by fusion
// score descending, then docID lexicographic.
func sortReranked(hits []model.RerankedHit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.RerankScore != b.RerankScore {
			return a.RerankScore > b.RerankScore
		}
		if a.FusionScore != b.FusionScore {
			return a.FusionScore > b.FusionScore
		}
		return a.DocID < b.DocID
	})
}

type errScoreCount struct {
	got, want int
}

func errScoreCountMismatch(got, want int) error {
	return &errScoreCount{got: got, want: want}
}

func (e *errScoreCount) Error() string {
	return fmt.Sprintf("rerank: scorer returned %d scores for %d passages", e.got, e.want)
}
