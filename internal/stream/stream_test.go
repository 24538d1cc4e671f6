package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env := New(EventChunk, "req-1", map[string]string{"text": "hi"})
	assert.Equal(t, EventChunk, env.Type)
	assert.Equal(t, "req-1", env.RequestID)
	assert.False(t, env.Timestamp.IsZero())

	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "hi", data["text"])
}

func TestNewEnvelopeNilData(t *testing.T) {
	env := New(EventDone, "req-1", nil)
	assert.Nil(t, env.Data)
}

func TestNewEnvelopeMarshalFailure(t *testing.T) {
	env := New(EventMetadata, "req-1", map[string]any{"bad": func() {}})
	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data["marshal_error"])
}

func TestTerminal(t *testing.T) {
	assert.True(t, EventDone.Terminal())
	assert.True(t, EventError.Terminal())
	assert.False(t, EventChunk.Terminal())
	assert.False(t, EventMetadata.Terminal())
	assert.False(t, EventResponseCompleted.Terminal())
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := []struct {
		raw  string
		want FinishReason
	}{
		{"stop", FinishStop},
		{"end_turn", FinishStop},
		{"", FinishStop},
		{"something_new", FinishStop},
		{"length", FinishLength},
		{"max_tokens", FinishLength},
		{"MAX_TOKENS", FinishLength},
		{"truncated", FinishLength},
		{"content_filter", FinishContentFilter},
		{"safety", FinishContentFilter},
		{"function_call", FinishFunctionCall},
		{"tool_use", FinishFunctionCall},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeFinishReason(tc.raw), "raw %q", tc.raw)
	}
}

func TestExtractTotalTokens(t *testing.T) {
	tests := []struct {
		name  string
		usage map[string]any
		want  int
	}{
		{"snake case total", map[string]any{"total_tokens": 42}, 42},
		{"camel case total", map[string]any{"totalTokens": float64(17)}, 17},
		{"token count spelling", map[string]any{"total_token_count": int64(9)}, 9},
		{"sum of prompt and completion", map[string]any{"prompt_tokens": 10, "completion_tokens": 5}, 15},
		{"anthropic style", map[string]any{"input_tokens": float64(8), "output_tokens": float64(3)}, 11},
		{"output only", map[string]any{"completion_tokens": 7}, 7},
		{"json number", map[string]any{"total_tokens": json.Number("33")}, 33},
		{"total wins over parts", map[string]any{"total_tokens": 50, "prompt_tokens": 1}, 50},
		{"nothing usable", map[string]any{"foo": "bar"}, 0},
		{"empty", map[string]any{}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractTotalTokens(tc.usage))
		})
	}
}
