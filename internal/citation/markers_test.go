package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shiori-ai/shiori/internal/model"
)

func cmap(numbers ...int) model.CitationMap {
	m := make(model.CitationMap, len(numbers))
	for _, n := range numbers {
		m[n] = model.Citation{Number: n, DocID: "doc", Source: "src"}
	}
	return m
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		citations   model.CitationMap
		wantOK      bool
		wantMissing []int
	}{
		{"all known", "See [^1] and [2].", cmap(1, 2), true, nil},
		{"one missing", "See [^3].", cmap(1, 2), false, []int{3}},
		{"missing sorted and deduped", "[9] then [^4] then [9]", cmap(1), false, []int{4, 9}},
		{"no markers", "plain prose", cmap(1), true, nil},
		{"empty map", "see [^1]", model.CitationMap{}, false, []int{1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, missing := Validate(tc.answer, tc.citations)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantMissing, missing)
		})
	}
}

func TestNormalize(t *testing.T) {
	citations := cmap(1, 2)

	got := Normalize("First [1], second [^2], unknown [7].", citations)
	assert.Equal(t, "First [^1], second [^2], unknown .", got)

	// Idempotent.
	assert.Equal(t, got, Normalize(got, citations))
}

func TestStrip(t *testing.T) {
	assert.Equal(t, "Use retries and backoff.", Strip("Use retries[^1] and backoff[2]."))
	assert.Equal(t, "no markers", Strip("no markers"))
}

func TestBibliography(t *testing.T) {
	assert.Empty(t, Bibliography(model.CitationMap{}))

	fresh := &model.FreshnessInfo{Badge: "●", HumanReadable: "2 days ago"}
	citations := model.CitationMap{
		2: {Number: 2, Source: "deploy.md", Filepath: "runbooks/deploy.md"},
		1: {
			Number:    1,
			Source:    "docs.example.com/guide",
			URL:       "https://docs.example.com/guide",
			Version:   "3.1",
			Authors:   []string{"Mori", "Sato"},
			Freshness: fresh,
		},
	}

	got := Bibliography(citations)
	want := "\n\n## Sources\n\n" +
		"1. Mori, Sato. **docs.example.com/guide** (v3.1) ● 2 days ago — https://docs.example.com/guide\n" +
		"2. **deploy.md** — runbooks/deploy.md\n"
	assert.Equal(t, want, got)
}
