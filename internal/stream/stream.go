// Package stream defines the provider-agnostic event envelope and the
// normalization of provider-specific stream payloads.
package stream

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType labels a stream envelope.
type EventType string

const (
	EventChunk             EventType = "chunk"
	EventCompletion        EventType = "completion"
	EventCitations         EventType = "citations"
	EventMetadata          EventType = "metadata"
	EventFormattedAnswer   EventType = "formatted_answer"
	EventResponseCompleted EventType = "response_completed"
	EventError             EventType = "error"
	EventDone              EventType = "done"
	EventProviderSpecific  EventType = "provider_specific"
)

// Terminal reports whether the event type ends a stream. Exactly one
// terminal event is emitted per stream.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// Envelope is one provider-agnostic stream event.
type Envelope struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope, marshaling data. Marshal failures degrade to a
// payload carrying the error text rather than dropping the event.
func New(t EventType, requestID string, data any) Envelope {
	env := Envelope{Type: t, Timestamp: time.Now().UTC(), RequestID: requestID}
	if data == nil {
		return env
	}
	raw, err := json.Marshal(data)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	env.Data = raw
	return env
}

// FinishReason is the normalized set of provider stop reasons.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishFunctionCall  FinishReason = "function_call"
)

// NormalizeFinishReason maps a provider-specific finish reason onto the
// normalized set by keyword matching. Unknown reasons map to stop.
func NormalizeFinishReason(raw string) FinishReason {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(r, "length"), strings.Contains(r, "max_token"), strings.Contains(r, "truncat"):
		return FinishLength
	case strings.Contains(r, "filter"), strings.Contains(r, "safety"), strings.Contains(r, "content"):
		return FinishContentFilter
	case strings.Contains(r, "function"), strings.Contains(r, "tool"):
		return FinishFunctionCall
	default:
		return FinishStop
	}
}

// usage key variants observed across provider payloads.
var totalTokenKeys = []string{
	"total_tokens", "totalTokens", "total_token_count", "tokens_used",
}

// ExtractTotalTokens pulls a total token count out of a provider usage
// payload, trying the known key spellings and falling back to summing
// input and output counts. Returns 0 when nothing usable is present.
func ExtractTotalTokens(usage map[string]any) int {
	for _, key := range totalTokenKeys {
		if n, ok := asInt(usage[key]); ok {
			return n
		}
	}
	in, okIn := firstInt(usage, "prompt_tokens", "input_tokens", "promptTokens")
	out, okOut := firstInt(usage, "completion_tokens", "output_tokens", "completionTokens")
	if okIn || okOut {
		return in + out
	}
	return 0
}

func firstInt(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		if n, ok := asInt(m[k]); ok {
			return n, true
		}
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}
