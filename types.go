package shiori

import (
	"encoding/json"
	"time"
)

// Public request/response types. Standalone structs with no internal
// imports; conversion helpers live in shiori.go.

// UserContext identifies the caller for ACL filtering.
type UserContext struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	GroupIDs []string `json:"group_ids,omitempty"`
}

// Format selects the answer output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPlain    Format = "plain"
)

// GuardrailDecision is an answerability verdict computed upstream.
type GuardrailDecision struct {
	IsAnswerable bool    `json:"is_answerable"`
	Confidence   float64 `json:"confidence"`
	ReasonCode   string  `json:"reason_code,omitempty"`
}

// Query is one natural-language question plus execution hints.
type Query struct {
	Text string      `json:"text"`
	User UserContext `json:"user"`

	// K overrides the tenant's candidate pool size when > 0.
	K int `json:"k,omitempty"`

	// Filter holds extra conjunctive keyword predicates applied inside
	// each backend query, on top of the tenant and ACL filters.
	Filter map[string]string `json:"filter,omitempty"`

	Format Format `json:"format,omitempty"`

	// MaxContextTokens overrides the tenant's packing budget when > 0.
	MaxContextTokens int `json:"max_context_tokens,omitempty"`

	// PriorGuardrail, when set, replaces the engine's own answerability
	// gate: the decision is trusted verbatim, including a refusal.
	PriorGuardrail *GuardrailDecision `json:"prior_guardrail,omitempty"`
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

// FreshnessStats summarizes the freshness distribution of a candidate set.
type FreshnessStats struct {
	Fresh         int `json:"fresh"`
	Recent        int `json:"recent"`
	Stale         int `json:"stale"`
	Unknown       int `json:"unknown"`
	OldestAgeDays int `json:"oldest_age_days"`
	NewestAgeDays int `json:"newest_age_days"`
}

// Outcome tags how a request resolved.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeIDK      Outcome = "idk"
)

// Answer is the final response for a single query.
type Answer struct {
	Outcome          Outcome          `json:"outcome"`
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

// StreamEvent is one envelope from a streaming ask.
type StreamEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}
