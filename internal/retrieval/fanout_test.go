package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeVectorStore struct {
	hits      []model.RetrievalHit
	err       error
	lastScope Scope
	lastLimit int
}

func (f *fakeVectorStore) SearchVectors(_ context.Context, _ []float32, scope Scope, limit int) ([]model.RetrievalHit, error) {
	f.lastScope = scope
	f.lastLimit = limit
	return f.hits, f.err
}

type fakeLexicalIndex struct {
	hits      []model.RetrievalHit
	err       error
	lastScope Scope
}

func (f *fakeLexicalIndex) SearchText(_ context.Context, _ string, scope Scope, _ int) ([]model.RetrievalHit, error) {
	f.lastScope = scope
	return f.hits, f.err
}

func testHits(ids ...string) []model.RetrievalHit {
	out := make([]model.RetrievalHit, len(ids))
	for i, id := range ids {
		out[i] = model.RetrievalHit{DocID: id, Rank: i + 1, Score: 1.0 - float64(i)*0.1}
	}
	return out
}

func testQuery() model.Query {
	return model.Query{
		Text: "how do I rotate keys",
		User: model.UserContext{
			UserID:   "alice",
			TenantID: "acme",
			GroupIDs: []string{"eng"},
		},
	}
}

func retrievalCfg() config.RetrievalConfig {
	return config.RetrievalConfig{
		KBase:          12,
		VectorWeight:   0.7,
		LexicalWeight:  0.3,
		VectorTimeout:  time.Second,
		LexicalTimeout: time.Second,
	}
}

func newTestFanout(emb *fakeEmbedder, vec *fakeVectorStore, lex *fakeLexicalIndex) *Fanout {
	return NewFanout(emb, vec, lex, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSearchBothBackends(t *testing.T) {
	vec := &fakeVectorStore{hits: testHits("a", "b")}
	lex := &fakeLexicalIndex{hits: testHits("b", "c")}
	f := newTestFanout(&fakeEmbedder{}, vec, lex)

	res, err := f.Search(context.Background(), testQuery(), retrievalCfg(), 10)
	require.NoError(t, err)
	assert.Len(t, res.Vector, 2)
	assert.Len(t, res.Lexical, 2)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 10, vec.lastLimit)
}

func TestSearchScopeCarriesPrincipals(t *testing.T) {
	vec := &fakeVectorStore{}
	lex := &fakeLexicalIndex{}
	f := newTestFanout(&fakeEmbedder{}, vec, lex)

	q := testQuery()
	q.Filter = map[string]string{"lang": "en"}
	_, err := f.Search(context.Background(), q, retrievalCfg(), 10)
	require.NoError(t, err)

	assert.Equal(t, "acme", vec.lastScope.TenantID)
	assert.Equal(t, []string{"alice", "eng"}, vec.lastScope.Principals)
	assert.Equal(t, "en", vec.lastScope.Filter["lang"])
	assert.Equal(t, vec.lastScope, lex.lastScope)
}

func TestSearchSingleBackendFailureIsWarning(t *testing.T) {
	vec := &fakeVectorStore{err: errors.New("qdrant down")}
	lex := &fakeLexicalIndex{hits: testHits("a")}
	f := newTestFanout(&fakeEmbedder{}, vec, lex)

	res, err := f.Search(context.Background(), testQuery(), retrievalCfg(), 10)
	require.NoError(t, err)
	assert.Empty(t, res.Vector)
	assert.Len(t, res.Lexical, 1)
	assert.Contains(t, res.Warning, "vector backend failed")

	vec2 := &fakeVectorStore{hits: testHits("a")}
	lex2 := &fakeLexicalIndex{err: errors.New("pg down")}
	f = newTestFanout(&fakeEmbedder{}, vec2, lex2)

	res, err = f.Search(context.Background(), testQuery(), retrievalCfg(), 10)
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "lexical backend failed")
}

func TestSearchBothBackendsFailing(t *testing.T) {
	vec := &fakeVectorStore{err: errors.New("qdrant down")}
	lex := &fakeLexicalIndex{err: errors.New("pg down")}
	f := newTestFanout(&fakeEmbedder{}, vec, lex)

	_, err := f.Search(context.Background(), testQuery(), retrievalCfg(), 10)
	var re *model.RetrievalBackendError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, model.FailureBoth, re.Which)
}

func TestSearchEmbedderFailureCountsAsVectorFailure(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("embedding api down")}
	lex := &fakeLexicalIndex{hits: testHits("a")}
	f := newTestFanout(emb, &fakeVectorStore{}, lex)

	res, err := f.Search(context.Background(), testQuery(), retrievalCfg(), 10)
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "vector backend failed")
	assert.Len(t, res.Lexical, 1)
}

func TestSearchInvalidUser(t *testing.T) {
	f := newTestFanout(&fakeEmbedder{}, &fakeVectorStore{}, &fakeLexicalIndex{})

	q := testQuery()
	q.User.TenantID = ""
	_, err := f.Search(context.Background(), q, retrievalCfg(), 10)
	var ue *model.UnauthorizedError
	require.ErrorAs(t, err, &ue)
}

func TestSearchZeroKShortCircuits(t *testing.T) {
	emb := &fakeEmbedder{}
	f := newTestFanout(emb, &fakeVectorStore{}, &fakeLexicalIndex{})

	res, err := f.Search(context.Background(), testQuery(), retrievalCfg(), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Vector)
	assert.Empty(t, res.Lexical)
	assert.Zero(t, emb.calls)
}

func TestSearchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFanout(&fakeEmbedder{}, &fakeVectorStore{hits: testHits("a")}, &fakeLexicalIndex{})
	_, err := f.Search(ctx, testQuery(), retrievalCfg(), 10)
	assert.ErrorIs(t, err, context.Canceled)
}
