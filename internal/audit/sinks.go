package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SlogSink writes audit records as structured log lines. The default sink
// when no database is configured.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Write(_ context.Context, rec Record) error {
	s.logger.Info("audit",
		"request_id", rec.RequestID,
		"tenant_id", rec.TenantID,
		"user_id", rec.UserID,
		"outcome", rec.Outcome,
		"reason_code", rec.ReasonCode,
		"confidence", rec.Confidence,
		"is_answerable", rec.IsAnswerable,
		"vector_hits", rec.VectorHits,
		"lexical_hits", rec.LexicalHits,
		"fused_count", rec.FusedCount,
		"selected_count", rec.SelectedCount,
		"citation_count", rec.CitationCount,
		"tokens_used", rec.TokensUsed,
		"reranker_bypassed", rec.RerankerBypassed,
		"context_truncated", rec.ContextTruncated,
		"model_used", rec.ModelUsed,
		"error_code", rec.ErrorCode,
		"total_ms", rec.Timings.Total.Milliseconds(),
	)
	return nil
}

func (s *SlogSink) Close() error { return nil }

// PostgresSink persists audit records to the shiori_audit table, sharing
// the lexical index's connection pool.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps an existing pool. The sink does not own the pool;
// Close is a no-op so the retrieval layer keeps working after audit
// shutdown.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

const insertAuditSQL = `
INSERT INTO shiori_audit (
    request_id, tenant_id, user_id, created_at, query_text,
    outcome, reason_code, confidence, is_answerable,
    vector_hits, lexical_hits, fused_count, selected_count,
    citation_count, tokens_used, reranker_bypassed, context_truncated,
    model_used, error_code,
    retrieval_ms, rerank_ms, guardrail_ms, packing_ms, llm_ms, total_ms
) VALUES (
    $1, $2, $3, $4, $5,
    $6, $7, $8, $9,
    $10, $11, $12, $13,
    $14, $15, $16, $17,
    $18, $19,
    $20, $21, $22, $23, $24, $25
)`

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, insertAuditSQL,
		rec.RequestID, rec.TenantID, rec.UserID, rec.Timestamp, nullable(rec.QueryText),
		string(rec.Outcome), string(rec.ReasonCode), rec.Confidence, rec.IsAnswerable,
		rec.VectorHits, rec.LexicalHits, rec.FusedCount, rec.SelectedCount,
		rec.CitationCount, rec.TokensUsed, rec.RerankerBypassed, rec.ContextTruncated,
		rec.ModelUsed, string(rec.ErrorCode),
		rec.Timings.Retrieval.Milliseconds(), rec.Timings.Rerank.Milliseconds(),
		rec.Timings.Guardrail.Milliseconds(), rec.Timings.Packing.Milliseconds(),
		rec.Timings.LLM.Milliseconds(), rec.Timings.Total.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error { return nil }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
