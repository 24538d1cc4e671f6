package stream

import "github.com/shiori-ai/shiori/internal/model"

// Payload shapes carried in envelope data, shared between the LLM client
// and the synthesis orchestrator.

// Chunk is one incremental answer fragment.
type Chunk struct {
	Text string `json:"text"`
}

// Completion closes the model output phase of a stream.
type Completion struct {
	TotalTokens  int          `json:"total_tokens"`
	FinishReason FinishReason `json:"finish_reason"`
	Model        string       `json:"model"`
}

// Citations carries the final citation map.
type Citations struct {
	Citations model.CitationMap `json:"citations"`
}

// Metadata carries response metadata emitted before the terminal event.
type Metadata struct {
	Outcome          model.OutcomeKind    `json:"outcome"`
	Confidence       float64              `json:"confidence"`
	ModelUsed        string               `json:"model_used"`
	TokensUsed       int                  `json:"tokens_used"`
	ContextTruncated bool                 `json:"context_truncated"`
	Freshness        model.FreshnessStats `json:"freshness"`
	ReasonCode       model.ReasonCode     `json:"reason_code,omitempty"`
	Suggestions      []string             `json:"suggestions,omitempty"`
	Warnings         []string             `json:"warnings,omitempty"`
}

// FormattedAnswer carries the fully formatted answer text.
type FormattedAnswer struct {
	Answer string `json:"answer"`
}

// ResponseCompleted summarizes the finished response.
type ResponseCompleted struct {
	SynthesisTimeMs int64 `json:"synthesis_time_ms"`
	TokensUsed      int   `json:"tokens_used"`
}

// Error is the terminal failure payload.
type Error struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}
