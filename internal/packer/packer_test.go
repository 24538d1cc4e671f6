package packer

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

// wordCounter makes token costs predictable: one token per whitespace field.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func newTestPacker() *Packer {
	return New(wordCounter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func chunk(docID, content string, score float64) model.RerankedHit {
	return model.RerankedHit{
		FusedHit: model.FusedHit{
			DocID:   docID,
			Content: content,
			Payload: model.DocumentPayload{DocID: docID},
		},
		RerankScore: score,
	}
}

func baseCfg() config.ContextConfig {
	return config.ContextConfig{
		MaxContextTokens:   1000,
		PerDocCap:          2,
		PerSectionCap:      1,
		NoveltyAlpha:       0, // disabled unless a test turns it on
		AnswerabilityBonus: 0.1,
	}
}

func TestPackStopsAtBudget(t *testing.T) {
	p := newTestPacker()
	hits := []model.RerankedHit{
		chunk("doc-a", "alpha beta gamma", 0.9),
		chunk("doc-b", "delta epsilon zeta", 0.8),
		chunk("doc-c", "eta theta iota", 0.7),
	}

	// Each selection costs 4 header tokens + 3 content tokens. Budget 14
	// fits exactly two.
	packed, _ := p.Pack("", hits, 14, baseCfg())
	require.Len(t, packed.Selected, 2)
	assert.Equal(t, "doc-a", packed.Selected[0].DocID)
	assert.Equal(t, "doc-b", packed.Selected[1].DocID)
	assert.Equal(t, 14, packed.TokensUsed)
	assert.False(t, packed.Truncated)
}

func TestPackTokensNeverExceedBudget(t *testing.T) {
	p := newTestPacker()
	hits := []model.RerankedHit{
		chunk("doc-a", strings.Repeat("word ", 50), 0.9),
		chunk("doc-b", strings.Repeat("term ", 50), 0.8),
	}

	for _, budget := range []int{10, 30, 60, 120} {
		packed, _ := p.Pack("", hits, budget, baseCfg())
		assert.LessOrEqual(t, packed.TokensUsed, budget, "budget %d", budget)
		assert.NotEmpty(t, packed.Selected, "budget %d", budget)
	}
}

func TestPackTruncatesFirstChunkToFit(t *testing.T) {
	p := newTestPacker()
	hits := []model.RerankedHit{chunk("doc-a", strings.Repeat("alpha ", 40), 0.9)}

	packed, _ := p.Pack("", hits, 12, baseCfg())
	require.Len(t, packed.Selected, 1)
	assert.True(t, packed.Truncated)
	assert.True(t, strings.HasSuffix(packed.Selected[0].Content, "..."))
	assert.LessOrEqual(t, packed.TokensUsed, 12)
}

func TestPackPerDocCap(t *testing.T) {
	p := newTestPacker()
	hits := []model.RerankedHit{
		chunk("doc-a", "alpha beta gamma", 0.9),
		chunk("doc-a", "delta epsilon zeta", 0.8),
		chunk("doc-a", "eta theta iota", 0.7),
		chunk("doc-b", "kappa lambda mu", 0.6),
	}
	// Distinct sections so only the doc cap applies.
	for i := range hits {
		hits[i].Payload.SectionPath = string(rune('a' + i))
	}

	packed, _ := p.Pack("", hits, 0, baseCfg())
	require.Len(t, packed.Selected, 3)
	assert.Equal(t, "doc-a", packed.Selected[0].DocID)
	assert.Equal(t, "doc-a", packed.Selected[1].DocID)
	assert.Equal(t, "doc-b", packed.Selected[2].DocID)
}

func TestPackPerSectionCap(t *testing.T) {
	p := newTestPacker()
	hits := []model.RerankedHit{
		chunk("doc-a", "alpha beta gamma", 0.9),
		chunk("doc-a", "delta epsilon zeta", 0.8),
	}
	hits[0].Payload.SectionPath = "setup"
	hits[1].Payload.SectionPath = "setup"

	packed, _ := p.Pack("", hits, 0, baseCfg())
	require.Len(t, packed.Selected, 1)
	assert.Equal(t, "alpha beta gamma", packed.Selected[0].Content)
}

func TestPackContiguousChunkBypassesSectionCap(t *testing.T) {
	p := newTestPacker()
	one, two := 1, 2
	hits := []model.RerankedHit{
		chunk("doc-a", "alpha beta gamma", 0.9),
		chunk("doc-a", "delta epsilon zeta", 0.8),
	}
	hits[0].Payload.SectionPath = "setup"
	hits[0].Payload.OrderIndex = &one
	hits[1].Payload.SectionPath = "setup"
	hits[1].Payload.OrderIndex = &two

	packed, _ := p.Pack("", hits, 0, baseCfg())
	assert.Len(t, packed.Selected, 2)
}

func TestPackNoveltyRejectsNearDuplicates(t *testing.T) {
	p := newTestPacker()
	cfg := baseCfg()
	cfg.NoveltyAlpha = 0.5

	hits := []model.RerankedHit{
		chunk("doc-a", "alpha beta gamma delta epsilon", 0.9),
		chunk("doc-b", "alpha beta gamma delta epsilon", 0.8), // exact duplicate text
		chunk("doc-c", "completely unrelated subject matter here", 0.7),
	}

	packed, trace := p.WithDebug(true).Pack("", hits, 0, cfg)
	require.Len(t, packed.Selected, 2)
	assert.Equal(t, "doc-a", packed.Selected[0].DocID)
	assert.Equal(t, "doc-c", packed.Selected[1].DocID)

	require.NotNil(t, trace)
	require.Len(t, trace.Rejected, 1)
	assert.Equal(t, "doc-b", trace.Rejected[0].DocID)
	assert.Equal(t, DropNovelty, trace.Rejected[0].Reason)
}

func TestPackAnswerabilityBonusReorders(t *testing.T) {
	p := newTestPacker()
	hits := []model.RerankedHit{
		chunk("doc-plain", "storage compaction details inside", 0.55),
		chunk("doc-match", "rotate signing keys procedure", 0.5),
	}

	// Two query keywords overlap doc-match, lifting 0.5 to 0.6.
	packed, _ := p.Pack("how do I rotate signing keys", hits, 0, baseCfg())
	require.Len(t, packed.Selected, 2)
	assert.Equal(t, "doc-match", packed.Selected[0].DocID)
	assert.Equal(t, 1, packed.Selected[0].FinalRank)
	assert.Equal(t, 2, packed.Selected[1].FinalRank)
}

func TestPackSkipsEmptyContent(t *testing.T) {
	p := newTestPacker()
	hits := []model.RerankedHit{
		chunk("doc-a", "   ", 0.9),
		chunk("doc-b", "alpha beta gamma", 0.8),
	}

	packed, _ := p.Pack("", hits, 0, baseCfg())
	require.Len(t, packed.Selected, 1)
	assert.Equal(t, "doc-b", packed.Selected[0].DocID)
}

func TestPackContextTextFormat(t *testing.T) {
	p := newTestPacker()
	hits := []model.RerankedHit{
		chunk("doc-a", "alpha beta", 0.9),
		chunk("doc-b", "gamma delta", 0.8),
	}

	packed, _ := p.Pack("", hits, 0, baseCfg())
	assert.Contains(t, packed.Text, "[Document 1] (Source: doc-a)\nalpha beta")
	assert.Contains(t, packed.Text, "[Document 2] (Source: doc-b)\ngamma delta")
	assert.Contains(t, packed.Text, "\n\n[Document 2]")
	assert.Equal(t, packed.PerDocTokens["doc-a"], 4+2)
}

func TestPackReunifiesNeighborChunk(t *testing.T) {
	p := newTestPacker()
	cfg := baseCfg()
	cfg.PerDocCap = 1
	one, two := 1, 2

	first := chunk("doc-a", "alpha beta gamma", 0.9)
	first.Payload.OrderIndex = &one
	second := chunk("doc-a", "delta epsilon zeta", 0.8)
	second.Payload.OrderIndex = &two

	packed, _ := p.Pack("", []model.RerankedHit{first, second}, 0, cfg)
	require.Len(t, packed.Selected, 1)
	// The capped neighbor is glued back onto the selected chunk.
	assert.Contains(t, packed.Selected[0].Content, "alpha beta gamma")
	assert.Contains(t, packed.Selected[0].Content, "delta epsilon zeta")
}

func TestPackAttachesMissingHeader(t *testing.T) {
	p := newTestPacker()
	h := chunk("doc-a", "alpha beta gamma", 0.9)
	h.Payload.Header = "## Setup"

	packed, _ := p.Pack("", []model.RerankedHit{h}, 0, baseCfg())
	require.Len(t, packed.Selected, 1)
	assert.True(t, strings.HasPrefix(packed.Selected[0].Content, "## Setup\n"))
}
