// Package guardrail decides answerability from retrieval score statistics.
// The decision is a pure function of the candidate scores and the tenant
// thresholds: same inputs, same decision.
package guardrail

import (
	"fmt"
	"math"
	"strings"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

// Confidence weighting. Mean relevance dominates; the max guards against
// a single lucky hit, consistency rewards agreement, count rewards corpus
// coverage.
const (
	weightMean        = 0.4
	weightMax         = 0.3
	weightConsistency = 0.2
	weightCount       = 0.1

	consistencySpread = 0.8
	countSaturation   = 5
)

// Evaluate computes the answerability decision for the effective candidate
// list (reranked hits when available, fused otherwise — the caller passes
// whichever it has, as RerankedHit either way).
func Evaluate(candidates []model.RerankedHit, cfg config.GuardrailConfig) model.GuardrailDecision {
	stats := computeStats(candidates)

	if stats.Count == 0 {
		return model.GuardrailDecision{
			IsAnswerable: false,
			Confidence:   0,
			Stats:        stats,
			ReasonCode:   model.ReasonNoRelevantDocs,
			Rationale:    "no candidates survived retrieval",
		}
	}

	consistency := math.Max(0, 1-(stats.Max-stats.Min)/consistencySpread)
	countScore := math.Min(float64(stats.Count)/countSaturation, 1)

	confidence := weightMean*clamp01(stats.Mean) +
		weightMax*clamp01(stats.Max) +
		weightConsistency*consistency +
		weightCount*countScore

	var failures []string
	if confidence < cfg.MinConfidence {
		failures = append(failures, fmt.Sprintf("confidence %.3f below %.3f", confidence, cfg.MinConfidence))
	}
	if stats.Max < cfg.MinTopScore {
		failures = append(failures, fmt.Sprintf("top score %.3f below %.3f", stats.Max, cfg.MinTopScore))
	}
	if stats.Mean < cfg.MinMeanScore {
		failures = append(failures, fmt.Sprintf("mean score %.3f below %.3f", stats.Mean, cfg.MinMeanScore))
	}
	if stats.Count < cfg.MinResultCount {
		failures = append(failures, fmt.Sprintf("result count %d below %d", stats.Count, cfg.MinResultCount))
	}

	decision := model.GuardrailDecision{
		IsAnswerable: len(failures) == 0,
		Confidence:   confidence,
		Stats:        stats,
	}

	if decision.IsAnswerable {
		decision.Rationale = fmt.Sprintf(
			"answerable: confidence %.3f, top %.3f, mean %.3f over %d candidates",
			confidence, stats.Max, stats.Mean, stats.Count)
		return decision
	}

	decision.ReasonCode = reasonFor(stats, confidence, cfg)
	decision.Rationale = "not answerable: " + strings.Join(failures, "; ")
	return decision
}

// reasonFor picks the reason code by the first failing threshold in
// priority order: missing results, low confidence, unclear relevance.
func reasonFor(stats model.ScoreStats, confidence float64, cfg config.GuardrailConfig) model.ReasonCode {
	if stats.Count < cfg.MinResultCount {
		return model.ReasonNoRelevantDocs
	}
	if confidence < cfg.MinConfidence {
		return model.ReasonLowConfidence
	}
	return model.ReasonUnclearAnswer
}

func computeStats(candidates []model.RerankedHit) model.ScoreStats {
	if len(candidates) == 0 {
		return model.ScoreStats{}
	}

	stats := model.ScoreStats{
		Count: len(candidates),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}
	sum := 0.0
	for _, c := range candidates {
		s := c.RerankScore
		sum += s
		if s > stats.Max {
			stats.Max = s
		}
		if s < stats.Min {
			stats.Min = s
		}
	}
	stats.Mean = sum / float64(stats.Count)

	variance := 0.0
	for _, c := range candidates {
		d := c.RerankScore - stats.Mean
		variance += d * d
	}
	stats.StdDev = math.Sqrt(variance / float64(stats.Count))

	return stats
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
