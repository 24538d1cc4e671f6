package model

// ReasonCode explains why the guardrail refused to answer.
type ReasonCode string

const (
	ReasonNoRelevantDocs ReasonCode = "NO_RELEVANT_DOCS"
	ReasonLowConfidence  ReasonCode = "LOW_CONFIDENCE"
	ReasonUnclearAnswer  ReasonCode = "UNCLEAR_ANSWER"
)

// ScoreStats summarizes candidate scores for the guardrail decision.
type ScoreStats struct {
	Mean   float64 `json:"mean"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	StdDev float64 `json:"std_dev,omitempty"`
	Count  int     `json:"count"`
}

// GuardrailDecision is the answerability gate outcome. Deterministic:
// identical inputs always produce the identical decision and confidence.
type GuardrailDecision struct {
	IsAnswerable bool       `json:"is_answerable"`
	Confidence   float64    `json:"confidence"`
	Stats        ScoreStats `json:"score_stats"`
	ReasonCode   ReasonCode `json:"reason_code,omitempty"`
	Rationale    string     `json:"rationale"`
}
