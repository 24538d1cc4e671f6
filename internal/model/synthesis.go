package model

import "time"

// PackedContext is the token-budgeted prompt context. TokensUsed never
// exceeds the budget it was packed under.
type PackedContext struct {
	Text         string         `json:"text"`
	Selected     []RerankedHit  `json:"selected"`
	TokensUsed   int            `json:"tokens_used"`
	Truncated    bool           `json:"truncated"`
	PerDocTokens map[string]int `json:"per_doc_tokens"`
}

// OutcomeKind tags how a request resolved. Failures are Go errors, not a
/// third kind here: a SynthesisResult always represents a delivered answer
// or a deliberate refusal.
type OutcomeKind string

const (
	OutcomeAnswered OutcomeKind = "answered"
	OutcomeIDK      OutcomeKind = "idk"
)

// SynthesisResult is the final response for a single query.
//
// Confidence is always the guardrail confidence, never a post-synthesis
// estimate, so the value the caller sees is the value that gated the answer.
type SynthesisResult struct {
	Outcome          OutcomeKind    `json:"outcome"`
	Answer           string         `json:"answer"`
	Citations        CitationMap    `json:"citations"`
	TokensUsed       int            `json:"tokens_used"`
	SynthesisTime    time.Duration  `json:"synthesis_time"`
	Confidence       float64        `json:"confidence"`
	ModelUsed        string         `json:"model_used"`
	ContextTruncated bool           `json:"context_truncated"`
	Freshness        FreshnessStats `json:"freshness"`
	ReasonCode       ReasonCode     `json:"reason_code,omitempty"`

	// Suggestions accompany IDK answers: query refinement and scope hints.
	Suggestions []string `json:"suggestions,omitempty"`

	// Warnings records recovered degradations (reranker bypass, single
	// backend failure, quality threshold misses). Informational only.
	Warnings []string `json:"warnings,omitempty"`
}
