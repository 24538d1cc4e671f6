package guardrail

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

func candidates(scores ...float64) []model.RerankedHit {
	out := make([]model.RerankedHit, len(scores))
	for i, s := range scores {
		out[i] = model.RerankedHit{RerankScore: s}
	}
	return out
}

func moderate() config.GuardrailConfig {
	return config.GuardrailPreset("moderate")
}

func TestEvaluateEmptyCandidates(t *testing.T) {
	d := Evaluate(nil, moderate())
	assert.False(t, d.IsAnswerable)
	assert.Zero(t, d.Confidence)
	assert.Equal(t, model.ReasonNoRelevantDocs, d.ReasonCode)
	assert.Zero(t, d.Stats.Count)
}

func TestEvaluateConfidenceFormula(t *testing.T) {
	// Scores 0.8, 0.6, 0.7: mean 0.7, max 0.8, min 0.6.
	// consistency = 1 - (0.8-0.6)/0.8 = 0.75; countScore = 3/5 = 0.6.
	// confidence = 0.4*0.7 + 0.3*0.8 + 0.2*0.75 + 0.1*0.6 = 0.73.
	d := Evaluate(candidates(0.8, 0.6, 0.7), moderate())
	require.True(t, d.IsAnswerable)
	assert.InDelta(t, 0.73, d.Confidence, 1e-9)
	assert.Empty(t, d.ReasonCode)

	assert.Equal(t, 3, d.Stats.Count)
	assert.InDelta(t, 0.7, d.Stats.Mean, 1e-9)
	assert.InDelta(t, 0.8, d.Stats.Max, 1e-9)
	assert.InDelta(t, 0.6, d.Stats.Min, 1e-9)
	assert.InDelta(t, math.Sqrt(0.02/3), d.Stats.StdDev, 1e-9)
}

func TestEvaluateCountSaturates(t *testing.T) {
	many := candidates(0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9)
	d := Evaluate(many, moderate())
	// consistency 1, countScore capped at 1.
	assert.InDelta(t, 0.4*0.9+0.3*0.9+0.2+0.1, d.Confidence, 1e-9)
}

func TestEvaluateClampsOutOfRangeScores(t *testing.T) {
	// Mean and max clamp into [0,1] before weighting; raw stats keep the
	// original values.
	d := Evaluate(candidates(1.4, 1.2, 1.3), moderate())
	assert.InDelta(t, 1.4, d.Stats.Max, 1e-9)
	// clamped mean = 1, clamped max = 1, consistency = 1-(0.2)/0.8 = 0.75.
	assert.InDelta(t, 0.4+0.3+0.2*0.75+0.1*0.6, d.Confidence, 1e-9)
}

func TestEvaluateReasonPriority(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		cfg    config.GuardrailConfig
		want   model.ReasonCode
	}{
		{
			name:   "count failure wins over everything",
			scores: []float64{0.05},
			cfg: config.GuardrailConfig{
				MinConfidence:  0.9,
				MinTopScore:    0.9,
				MinMeanScore:   0.9,
				MinResultCount: 3,
			},
			want: model.ReasonNoRelevantDocs,
		},
		{
			name:   "confidence failure when count ok",
			scores: []float64{0.2, 0.2, 0.2},
			cfg: config.GuardrailConfig{
				MinConfidence:  0.9,
				MinTopScore:    0.1,
				MinMeanScore:   0.1,
				MinResultCount: 1,
			},
			want: model.ReasonLowConfidence,
		},
		{
			name: "unclear when only score thresholds fail",
			// High consistency keeps confidence above the bar while the
			// top score misses its own threshold.
			scores: []float64{0.5, 0.5, 0.5, 0.5, 0.5},
			cfg: config.GuardrailConfig{
				MinConfidence:  0.3,
				MinTopScore:    0.9,
				MinMeanScore:   0.1,
				MinResultCount: 1,
			},
			want: model.ReasonUnclearAnswer,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(candidates(tc.scores...), tc.cfg)
			require.False(t, d.IsAnswerable)
			assert.Equal(t, tc.want, d.ReasonCode)
			assert.NotEmpty(t, d.Rationale)
		})
	}
}

func TestEvaluatePresetStrictness(t *testing.T) {
	// A mediocre candidate set passes permissive but not paranoid.
	set := candidates(0.45, 0.4)

	perm := Evaluate(set, config.GuardrailPreset("permissive"))
	assert.True(t, perm.IsAnswerable)

	para := Evaluate(set, config.GuardrailPreset("paranoid"))
	assert.False(t, para.IsAnswerable)
}

func TestEvaluateDeterministic(t *testing.T) {
	set := candidates(0.81, 0.63, 0.77, 0.52)
	first := Evaluate(set, moderate())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Evaluate(set, moderate()))
	}
}
