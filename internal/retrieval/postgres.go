package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/shiori-ai/shiori/internal/model"
)

// PostgresIndex implements LexicalIndex via Postgres full-text search and
// VectorStore via pgvector, for single-Postgres deployments. The chunk
// table is written by the ingestion pipeline (out of scope); the core only
// reads it.
//
// Expected schema:
//
//	shiori_chunks(
//	    internal_id uuid primary key,
//	    doc_id      text not null,
//	    tenant_id   text not null,
//	    acl         text[] not null,
//	    content     text not null,
//	    content_tsv tsvector generated always as (to_tsvector('english', content)) stored,
//	    embedding   vector,
//	    payload     jsonb not null default '{}'
//	)
type PostgresIndex struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresIndex connects a pgx pool and registers pgvector types.
func NewPostgresIndex(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresIndex, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("retrieval: parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("retrieval: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("retrieval: ping postgres: %w", err)
	}

	return &PostgresIndex{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pool for sibling subsystems (audit sink).
func (p *PostgresIndex) Pool() *pgxpool.Pool {
	return p.pool
}

// SearchText runs websearch full-text search ranked by ts_rank_cd,
// restricted to the scope. Tenant and ACL predicates are part of the SQL:
// no row outside the scope ever reaches the caller.
func (p *PostgresIndex) SearchText(ctx context.Context, query string, scope Scope, limit int) ([]model.RetrievalHit, error) {
	filterJSON, err := scopeFilterJSON(scope)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT c.internal_id, c.doc_id, c.content, c.acl, c.payload,
		       ts_rank_cd(c.content_tsv, q) AS score
		FROM shiori_chunks c, websearch_to_tsquery('english', $1) q
		WHERE c.tenant_id = $2
		  AND c.acl && $3
		  AND c.content_tsv @@ q
		  AND c.payload @> $4::jsonb
		ORDER BY score DESC, c.doc_id
		LIMIT $5`,
		query, scope.TenantID, scope.Principals, filterJSON, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("retrieval: text search: %w", err)
	}
	defer rows.Close()

	return p.scanHits(rows, scope.TenantID)
}

// SearchVectors runs cosine similarity search via pgvector, restricted to
// the scope. Score is cosine similarity (1 − distance).
func (p *PostgresIndex) SearchVectors(ctx context.Context, embedding []float32, scope Scope, limit int) ([]model.RetrievalHit, error) {
	filterJSON, err := scopeFilterJSON(scope)
	if err != nil {
		return nil, err
	}

	vec := pgvector.NewVector(embedding)
	rows, err := p.pool.Query(ctx, `
		SELECT c.internal_id, c.doc_id, c.content, c.acl, c.payload,
		       1 - (c.embedding <=> $1) AS score
		FROM shiori_chunks c
		WHERE c.tenant_id = $2
		  AND c.acl && $3
		  AND c.embedding IS NOT NULL
		  AND c.payload @> $4::jsonb
		ORDER BY c.embedding <=> $1
		LIMIT $5`,
		vec, scope.TenantID, scope.Principals, filterJSON, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", err)
	}
	defer rows.Close()

	return p.scanHits(rows, scope.TenantID)
}

// scanHits builds ranked hits from a result set ordered by score.
func (p *PostgresIndex) scanHits(rows pgx.Rows, tenantID string) ([]model.RetrievalHit, error) {
	var hits []model.RetrievalHit
	rank := 0
	for rows.Next() {
		var (
			internalID  string
			docID       string
			content     string
			acl         []string
			payloadJSON []byte
			score       float64
		)
		if err := rows.Scan(&internalID, &docID, &content, &acl, &payloadJSON, &score); err != nil {
			return nil, fmt.Errorf("retrieval: scan hit: %w", err)
		}

		var payload model.DocumentPayload
		if err := json.Unmarshal(payloadJSON, &payload); err != nil {
			p.logger.Warn("retrieval: malformed payload, skipping chunk",
				"internal_id", internalID, "error", err)
			continue
		}
		payload.DocID = docID
		payload.TenantID = tenantID
		payload.ACL = acl

		rank++
		hits = append(hits, model.RetrievalHit{
			DocID:      docID,
			InternalID: internalID,
			Score:      score,
			Rank:       rank,
			Payload:    payload,
			Content:    content,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retrieval: iterate hits: %w", err)
	}
	return hits, nil
}

// scopeFilterJSON converts the caller's keyword predicates into a JSONB
// containment object; an empty filter matches every row.
func scopeFilterJSON(scope Scope) ([]byte, error) {
	if len(scope.Filter) == 0 {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(scope.Filter)
	if err != nil {
		return nil, fmt.Errorf("retrieval: encode filter: %w", err)
	}
	return b, nil
}

// Healthy returns nil if Postgres is reachable.
func (p *PostgresIndex) Healthy(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("retrieval: postgres unhealthy: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresIndex) Close() {
	p.pool.Close()
}
