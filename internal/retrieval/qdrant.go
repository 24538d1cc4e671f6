package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/shiori-ai/shiori/internal/model"
)

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantStore implements VectorStore (and LexicalIndex, via Qdrant's
// full-text match predicate) backed by a Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("retrieval: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("retrieval: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantStore connects to Qdrant via gRPC.
func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection if it doesn't already exist and
// ensures payload indexes are present. CreateFieldIndex is idempotent on
// Qdrant, so index creation is always attempted to backfill indexes added
// after the collection was first created.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("retrieval: check collection exists: %w", err)
	}

	if !exists {
		m := uint64(16)
		efConstruct := uint64(128)

		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		}); err != nil {
			return fmt.Errorf("retrieval: create collection %q: %w", q.collection, err)
		}
		q.logger.Info("qdrant: created collection", "collection", q.collection, "dims", q.dims)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"tenant_id", "acl", "doc_id", "source", "lang", "section_path"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("retrieval: ensure index on %q: %w", field, err)
		}
	}

	// Full-text index on content backs the lexical match predicate.
	textType := qdrant.FieldType_FieldTypeText
	if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "content",
		FieldType:      &textType,
	}); err != nil {
		return fmt.Errorf("retrieval: ensure text index on content: %w", err)
	}

	return nil
}

// scopeConditions builds the mandatory tenant + ACL filter plus caller
// predicates. Applied inside every query; no hit escapes the scope.
func scopeConditions(scope Scope) []*qdrant.Condition {
	must := []*qdrant.Condition{
		qdrant.NewMatch("tenant_id", scope.TenantID),
	}
	if len(scope.Principals) == 1 {
		must = append(must, qdrant.NewMatch("acl", scope.Principals[0]))
	} else {
		must = append(must, qdrant.NewMatchKeywords("acl", scope.Principals...))
	}
	for key, val := range scope.Filter {
		must = append(must, qdrant.NewMatch(key, val))
	}
	return must
}

// SearchVectors queries Qdrant for the scope's nearest chunks.
func (q *QdrantStore) SearchVectors(ctx context.Context, embedding []float32, scope Scope, limit int) ([]model.RetrievalHit, error) {
	fetchLimit := uint64(limit) //nolint:gosec // limit is bounded by tenant config (8–24)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(embedding),
		Filter:         &qdrant.Filter{Must: scopeConditions(scope)},
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: qdrant query: %w", err)
	}
	return q.toHits(scored), nil
}

// SearchText runs a keyword search using Qdrant's full-text match on the
// content payload field. Used when no separate lexical engine is deployed.
// Qdrant does not rank text matches, so hits keep insertion order and a
// uniform score; fusion relies on rank only.
func (q *QdrantStore) SearchText(ctx context.Context, query string, scope Scope, limit int) ([]model.RetrievalHit, error) {
	must := append(scopeConditions(scope), qdrant.NewMatchText("content", query))

	fetchLimit := uint32(limit) //nolint:gosec // limit is bounded by tenant config (8–24)
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: qdrant text scroll: %w", err)
	}

	hits := make([]model.RetrievalHit, 0, len(points))
	for i, pt := range points {
		payload, content := parsePayload(pt.Payload)
		hits = append(hits, model.RetrievalHit{
			DocID:      payload.DocID,
			InternalID: pt.Id.GetUuid(),
			Score:      1.0,
			Rank:       i + 1,
			Payload:    payload,
			Content:    content,
		})
	}
	return hits, nil
}

// toHits converts scored points into retrieval hits with 1-based ranks.
func (q *QdrantStore) toHits(scored []*qdrant.ScoredPoint) []model.RetrievalHit {
	hits := make([]model.RetrievalHit, 0, len(scored))
	for i, sp := range scored {
		payload, content := parsePayload(sp.Payload)
		if payload.DocID == "" {
			q.logger.Warn("qdrant: point missing doc_id payload", "id", sp.Id.GetUuid())
			continue
		}
		hits = append(hits, model.RetrievalHit{
			DocID:      payload.DocID,
			InternalID: sp.Id.GetUuid(),
			Score:      float64(sp.Score),
			Rank:       i + 1,
			Payload:    payload,
			Content:    content,
		})
	}
	return hits
}

// parsePayload maps a Qdrant payload into a DocumentPayload plus content.
// Optional fields that are absent or mistyped are simply left zero.
func parsePayload(p map[string]*qdrant.Value) (model.DocumentPayload, string) {
	out := model.DocumentPayload{
		DocID:           payloadStr(p, "doc_id"),
		TenantID:        payloadStr(p, "tenant_id"),
		ACL:             payloadStrList(p, "acl"),
		Source:          payloadStr(p, "source"),
		URL:             payloadStr(p, "url"),
		Filepath:        payloadStr(p, "filepath"),
		Authors:         payloadStrList(p, "authors"),
		Version:         payloadStr(p, "version"),
		Lang:            payloadStr(p, "lang"),
		SectionPath:     payloadStr(p, "section_path"),
		Header:          payloadStr(p, "header"),
		DocTitle:        payloadStr(p, "doc_title"),
		EmbedderVersion: payloadStr(p, "embedder_version"),
	}
	if t, ok := payloadTime(p, "created_at"); ok {
		out.CreatedAt = &t
	}
	if t, ok := payloadTime(p, "modified_at"); ok {
		out.ModifiedAt = &t
	}
	if v, ok := p["order_index"]; ok {
		if iv, isInt := v.GetKind().(*qdrant.Value_IntegerValue); isInt {
			n := int(iv.IntegerValue)
			out.OrderIndex = &n
		}
	}
	return out, payloadStr(p, "content")
}

func payloadStr(p map[string]*qdrant.Value, key string) string {
	if v, ok := p[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadStrList(p map[string]*qdrant.Value, key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		// A single string is accepted as a one-element list.
		if s := v.GetStringValue(); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func payloadTime(p map[string]*qdrant.Value, key string) (time.Time, bool) {
	v, ok := p[key]
	if !ok {
		return time.Time{}, false
	}
	if s := v.GetStringValue(); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
	}
	if f := v.GetDoubleValue(); f > 0 {
		return time.Unix(int64(f), 0).UTC(), true
	}
	if n := v.GetIntegerValue(); n > 0 {
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

// Healthy returns nil if Qdrant is reachable.
func (q *QdrantStore) Healthy(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := q.client.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("retrieval: qdrant unhealthy: %w", err)
	}
	return nil
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}
