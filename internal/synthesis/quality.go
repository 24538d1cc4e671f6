package synthesis

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shiori-ai/shiori/internal/model"
)

// QualityPolicy holds the post-hoc answer quality thresholds. Violations
// produce warnings only; a citation validity failure is the one exception
// and fails the request.
type QualityPolicy struct {
	MinQualityScore  float64
	MinCitations     int
	MaxLatency       time.Duration
	EnforceCitations bool
}

// DefaultQualityPolicy returns the standard thresholds.
func DefaultQualityPolicy() QualityPolicy {
	return QualityPolicy{
		MinQualityScore:  0.5,
		MinCitations:     1,
		MaxLatency:       30 * time.Second,
		EnforceCitations: true,
	}
}

var refusalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i don'?t have enough information`),
	regexp.MustCompile(`(?i)i cannot answer`),
	regexp.MustCompile(`(?i)no (relevant )?information (is )?(available|provided)`),
	regexp.MustCompile(`(?i)insufficient context`),
}

// qualityScore is the heuristic answer quality estimate. Used only for
// warnings, never for gating; the confidence the caller sees stays the
// guardrail's.
func qualityScore(answer string, truncated bool, avgCandidateScore float64, freshness model.FreshnessStats) float64 {
	score := 0.8
	if truncated {
		score *= 0.8
	}

	rel := avgCandidateScore + 0.3
	if rel > 1 {
		rel = 1
	}
	score *= rel

	score *= freshnessFactor(freshness)

	if len(answer) < 50 {
		score *= 0.6
	}

	for _, re := range refusalPatterns {
		if re.MatchString(answer) {
			return 0.1
		}
	}
	return score
}

// freshnessFactor maps the freshness distribution onto [0.6, 1]: all fresh
// scores 1, all stale scores 0.6, recent counts half.
func freshnessFactor(fs model.FreshnessStats) float64 {
	known := fs.Fresh + fs.Recent + fs.Stale
	if known == 0 {
		return 1
	}
	share := (float64(fs.Fresh) + 0.5*float64(fs.Recent)) / float64(known)
	return 0.6 + 0.4*share
}

// applyQuality evaluates the policy and appends warnings to the result.
func applyQuality(res *model.SynthesisResult, policy QualityPolicy, avgScore float64) {
	q := qualityScore(res.Answer, res.ContextTruncated, avgScore, res.Freshness)
	if q < policy.MinQualityScore {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("quality score %.2f below threshold %.2f", q, policy.MinQualityScore))
	}
	if len(res.Citations) < policy.MinCitations {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("citation count %d below threshold %d", len(res.Citations), policy.MinCitations))
	}
	if policy.MaxLatency > 0 && res.SynthesisTime > policy.MaxLatency {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("synthesis took %s, above threshold %s", res.SynthesisTime, policy.MaxLatency))
	}
}
