package citation

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

var baseTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestBuilder() *Builder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBuilder(config.FreshnessConfig{FreshDays: 7, RecentDays: 30}, logger)
	b.now = func() time.Time { return baseTime }
	return b
}

func hitWith(docID string, payload model.DocumentPayload) model.RerankedHit {
	payload.DocID = docID
	return model.RerankedHit{FusedHit: model.FusedHit{DocID: docID, Payload: payload}}
}

func daysAgo(n int) *time.Time {
	t := baseTime.AddDate(0, 0, -n)
	return &t
}

func TestExtractDenseNumbering(t *testing.T) {
	b := newTestBuilder()
	hits := []model.RerankedHit{
		hitWith("doc-a", model.DocumentPayload{URL: "https://docs.example.com/guide"}),
		hitWith("", model.DocumentPayload{}), // no usable source, skipped
		hitWith("doc-c", model.DocumentPayload{Filepath: "runbooks/deploy.md"}),
	}

	citations := b.Extract(hits)
	require.Len(t, citations, 2)
	assert.Equal(t, "docs.example.com/guide", citations[1].Source)
	assert.Equal(t, "deploy.md", citations[2].Source)
	assert.Equal(t, 1, citations[1].Number)
	assert.Equal(t, 2, citations[2].Number)
}

func TestSourceOfPrecedence(t *testing.T) {
	tests := []struct {
		name string
		hit  model.RerankedHit
		want string
	}{
		{
			name: "url wins",
			hit: hitWith("doc-1", model.DocumentPayload{
				URL:      "https://wiki.internal/page/one?ref=x",
				Filepath: "a/b.md",
			}),
			want: "wiki.internal/page/one",
		},
		{
			name: "filepath base when url absent",
			hit:  hitWith("doc-2", model.DocumentPayload{Filepath: "a/b/notes.md"}),
			want: "notes.md",
		},
		{
			name: "malformed url falls through",
			hit:  hitWith("doc-3", model.DocumentPayload{URL: "not a url", Filepath: "c.md"}),
			want: "c.md",
		},
		{
			name: "docID fallback",
			hit:  hitWith("doc-4", model.DocumentPayload{}),
			want: "doc-4",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SourceOf(tc.hit))
		})
	}
}

func TestSourceOfInternalID(t *testing.T) {
	h := model.RerankedHit{FusedHit: model.FusedHit{DocID: ""}}
	h.InternalID = "pt-991"
	assert.Equal(t, "pt-991", SourceOf(h))
}

func TestFreshnessBadges(t *testing.T) {
	b := newTestBuilder()
	tests := []struct {
		days     int
		badge    string
		category model.FreshnessCategory
	}{
		{0, "●", model.FreshnessFresh},
		{7, "●", model.FreshnessFresh},
		{8, "◐", model.FreshnessRecent},
		{30, "◐", model.FreshnessRecent},
		{31, "○", model.FreshnessStale},
		{400, "○", model.FreshnessStale},
	}
	for _, tc := range tests {
		hit := hitWith("d", model.DocumentPayload{ModifiedAt: daysAgo(tc.days)})
		citations := b.Extract([]model.RerankedHit{hit})
		require.NotNil(t, citations[1].Freshness, "age %d", tc.days)
		assert.Equal(t, tc.badge, citations[1].Freshness.Badge, "age %d", tc.days)
		assert.Equal(t, tc.category, citations[1].Freshness.Category, "age %d", tc.days)
		assert.Equal(t, tc.days, citations[1].Freshness.AgeDays, "age %d", tc.days)
	}
}

func TestFreshnessPrefersModifiedAt(t *testing.T) {
	b := newTestBuilder()
	hit := hitWith("d", model.DocumentPayload{
		CreatedAt:  daysAgo(100),
		ModifiedAt: daysAgo(2),
	})
	citations := b.Extract([]model.RerankedHit{hit})
	require.NotNil(t, citations[1].Freshness)
	assert.Equal(t, 2, citations[1].Freshness.AgeDays)
}

func TestHumanAge(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{0, "today"},
		{1, "1 day ago"},
		{6, "6 days ago"},
		{7, "1 week ago"},
		{21, "3 weeks ago"},
		{30, "1 month ago"},
		{300, "10 months ago"},
		{365, "1 year ago"},
		{800, "2 years ago"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, humanAge(tc.days), "days %d", tc.days)
	}
}

func TestStats(t *testing.T) {
	b := newTestBuilder()
	hits := []model.RerankedHit{
		hitWith("a", model.DocumentPayload{ModifiedAt: daysAgo(1)}),
		hitWith("b", model.DocumentPayload{ModifiedAt: daysAgo(15)}),
		hitWith("c", model.DocumentPayload{ModifiedAt: daysAgo(90)}),
		hitWith("d", model.DocumentPayload{}),
	}

	stats := b.Stats(hits)
	assert.Equal(t, 1, stats.Fresh)
	assert.Equal(t, 1, stats.Recent)
	assert.Equal(t, 1, stats.Stale)
	assert.Equal(t, 1, stats.Unknown)
	assert.Equal(t, 90, stats.OldestAgeDays)
	assert.Equal(t, 1, stats.NewestAgeDays)
}

func TestStatsAllUnknown(t *testing.T) {
	b := newTestBuilder()
	stats := b.Stats([]model.RerankedHit{hitWith("a", model.DocumentPayload{})})
	assert.Equal(t, 1, stats.Unknown)
	assert.Zero(t, stats.OldestAgeDays)
	assert.Zero(t, stats.NewestAgeDays)
}
