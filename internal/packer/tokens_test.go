package packer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatioCounter(t *testing.T) {
	c := RatioCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("ab")) // rounds down to 0, floored to 1
	assert.Equal(t, 2, c.Count("1234567"))
	assert.Equal(t, 20, c.Count(strings.Repeat("x", 70)))
}

func TestCounterForModelFallsBack(t *testing.T) {
	c := CounterForModel("definitely-not-a-model")
	require.NotNil(t, c)
	_, isRatio := c.(RatioCounter)
	assert.True(t, isRatio)
}

func TestCounterForModelKnownModel(t *testing.T) {
	c := CounterForModel("gpt-4o-mini")
	require.NotNil(t, c)
	if _, isRatio := c.(RatioCounter); isRatio {
		t.Skip("tokenizer tables unavailable")
	}
	// A real BPE encoding counts at least one token per word here.
	assert.GreaterOrEqual(t, c.Count("hello world"), 2)
}
