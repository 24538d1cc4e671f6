package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

// Result holds the joined output of one fan-out. When exactly one backend
// failed, its hits are empty, Warning names it, and the pipeline continues.
type Result struct {
	Vector  []model.RetrievalHit
	Lexical []model.RetrievalHit

	VectorErr  error
	LexicalErr error

	// Warning is set when exactly one backend failed; empty otherwise.
	Warning string

	VectorElapsed  time.Duration
	LexicalElapsed time.Duration
}

// Fanout issues dense and lexical searches concurrently and joins them.
type Fanout struct {
	embedder Embedder
	vector   VectorStore
	lexical  LexicalIndex
	logger   *slog.Logger
}

// NewFanout creates a Fanout. All three backends are required.
func NewFanout(embedder Embedder, vector VectorStore, lexical LexicalIndex, logger *slog.Logger) *Fanout {
	return &Fanout{
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		logger:   logger,
	}
}

// Search runs both backends for the query under the tenant's retrieval
// config. Each backend gets at most k hits and its own timeout; both calls
// complete (or fail) before Search returns.
//
// Fails with RetrievalBackendError{both} only when both backends fail; a
// single failure is downgraded to a warning. An invalid user context fails
// with UnauthorizedError before any backend call.
func (f *Fanout) Search(ctx context.Context, q model.Query, rc config.RetrievalConfig, k int) (Result, error) {
	if err := q.User.Validate(); err != nil {
		return Result{}, err
	}
	if k <= 0 {
		// Degenerate pool: short-circuit to empty results. The guardrail
		// downstream refuses with NO_RELEVANT_DOCS.
		return Result{}, nil
	}

	scope := Scope{
		TenantID:   q.User.TenantID,
		Principals: q.User.Principals(),
		Filter:     q.Filter,
	}

	var res Result

	// Each branch records its own error and returns nil so that one failing
	// backend never cancels the other; the join below decides fatality.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		res.Vector, res.VectorErr = f.searchVector(gctx, q.Text, scope, rc, k)
		res.VectorElapsed = time.Since(start)
		return nil
	})

	g.Go(func() error {
		lexCtx, cancel := context.WithTimeout(gctx, rc.LexicalTimeout)
		defer cancel()
		start := time.Now()
		res.Lexical, res.LexicalErr = f.lexical.SearchText(lexCtx, q.Text, scope, k)
		res.LexicalElapsed = time.Since(start)
		return nil
	})

	_ = g.Wait()

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	switch {
	case res.VectorErr != nil && res.LexicalErr != nil:
		return Result{}, &model.RetrievalBackendError{
			Which:      model.FailureBoth,
			VectorErr:  res.VectorErr,
			LexicalErr: res.LexicalErr,
		}
	case res.VectorErr != nil:
		res.Warning = "vector backend failed; lexical results only"
		f.logger.Warn("retrieval: vector backend failed, continuing",
			"tenant_id", q.User.TenantID, "error", res.VectorErr)
	case res.LexicalErr != nil:
		res.Warning = "lexical backend failed; vector results only"
		f.logger.Warn("retrieval: lexical backend failed, continuing",
			"tenant_id", q.User.TenantID, "error", res.LexicalErr)
	}

	f.logger.Debug("retrieval: fan-out complete",
		"tenant_id", q.User.TenantID,
		"vector_hits", len(res.Vector),
		"lexical_hits", len(res.Lexical),
		"vector_ms", res.VectorElapsed.Milliseconds(),
		"lexical_ms", res.LexicalElapsed.Milliseconds(),
	)

	return res, nil
}

// searchVector embeds the query and runs dense search under the vector
// timeout. An embedding failure counts as a vector backend failure.
func (f *Fanout) searchVector(ctx context.Context, text string, scope Scope, rc config.RetrievalConfig, k int) ([]model.RetrievalHit, error) {
	vecCtx, cancel := context.WithTimeout(ctx, rc.VectorTimeout)
	defer cancel()

	embedding, err := f.embedder.Embed(vecCtx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &model.TimeoutError{Stage: "embed"}
		}
		return nil, err
	}

	hits, err := f.vector.SearchVectors(vecCtx, embedding, scope, k)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &model.TimeoutError{Stage: "vector_search"}
		}
		return nil, err
	}
	return hits, nil
}
