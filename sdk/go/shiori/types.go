package shiori

import (
	"encoding/json"
	"time"
)

// AskRequest is the body of POST /v1/ask and /v1/ask/stream. The caller's
// identity comes from the bearer token, never from the body.
type AskRequest struct {
	// Text is the natural-language question. Required.
	Text string `json:"text"`

	// K overrides the tenant's candidate pool size when > 0.
	K int `json:"k,omitempty"`

	// Filter holds extra conjunctive keyword predicates.
	Filter map[string]string `json:"filter,omitempty"`

	// Format selects "markdown" (default) or "plain".
	Format string `json:"format,omitempty"`

	// MaxContextTokens overrides the tenant's packing budget when > 0.
	MaxContextTokens int `json:"max_context_tokens,omitempty"`

	// PriorGuardrail, when set, replaces the engine's answerability gate
	// with a verdict computed upstream; it is trusted verbatim.
	PriorGuardrail *GuardrailDecision `json:"prior_guardrail,omitempty"`
}

// GuardrailDecision is an answerability verdict computed upstream.
type GuardrailDecision struct {
	IsAnswerable bool    `json:"is_answerable"`
	Confidence   float64 `json:"confidence"`
	ReasonCode   string  `json:"reason_code,omitempty"`
}

// FreshnessInfo is the categorical view of a document's age.
type FreshnessInfo struct {
	AgeDays       int    `json:"age_days"`
	Category      string `json:"category"`
	HumanReadable string `json:"human_readable"`
	Badge         string `json:"badge"`
}

// Citation is one numbered source entry.
type Citation struct {
	Number    int            `json:"number"`
	DocID     string         `json:"doc_id"`
	Source    string         `json:"source"`
	URL       string         `json:"url,omitempty"`
	Filepath  string         `json:"filepath,omitempty"`
	Version   string         `json:"version,omitempty"`
	Authors   []string       `json:"authors,omitempty"`
	Freshness *FreshnessInfo `json:"freshness,omitempty"`
}

// FreshnessStats summarizes the freshness distribution of the candidate set.
type FreshnessStats struct {
	Fresh         int `json:"fresh"`
	Recent        int `json:"recent"`
	Stale         int `json:"stale"`
	Unknown       int `json:"unknown"`
	OldestAgeDays int `json:"oldest_age_days"`
	NewestAgeDays int `json:"newest_age_days"`
}

// Answer is the response of POST /v1/ask. Outcome "idk" means the engine
// refused to answer; ReasonCode and Suggestions explain why.
type Answer struct {
	Outcome          string           `json:"outcome"`
	Text             string           `json:"answer"`
	Citations        map[int]Citation `json:"citations"`
	TokensUsed       int              `json:"tokens_used"`
	SynthesisTime    time.Duration    `json:"synthesis_time"`
	Confidence       float64          `json:"confidence"`
	ModelUsed        string           `json:"model_used"`
	ContextTruncated bool             `json:"context_truncated"`
	Freshness        FreshnessStats   `json:"freshness"`
	ReasonCode       string           `json:"reason_code,omitempty"`
	Suggestions      []string         `json:"suggestions,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// Stream event types, in emission order for an answered query. The stream
// ends with exactly one of EventDone or EventError.
const (
	EventChunk             = "chunk"
	EventCitations         = "citations"
	EventMetadata          = "metadata"
	EventFormattedAnswer   = "formatted_answer"
	EventResponseCompleted = "response_completed"
	EventError             = "error"
	EventDone              = "done"
)

// StreamEvent is one envelope from POST /v1/ask/stream. Data is the
// type-specific payload, decoded by the caller per Type.
type StreamEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ChunkData is the payload of an EventChunk envelope.
type ChunkData struct {
	Text string `json:"text"`
}

// ErrorData is the payload of an EventError envelope.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is the response of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
