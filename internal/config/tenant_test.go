package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTenantConfig(t *testing.T) {
	cfg := DefaultTenantConfig()
	assert.Equal(t, 12, cfg.Retrieval.KBase)
	assert.Equal(t, 0.7, cfg.Retrieval.VectorWeight)
	assert.Equal(t, 0.3, cfg.Retrieval.LexicalWeight)
	assert.True(t, cfg.Reranker.Enabled)
	assert.Equal(t, 20, cfg.Reranker.TopIn)
	assert.Equal(t, 8, cfg.Reranker.TopOut)
	assert.Equal(t, "moderate", cfg.Guardrail.Preset)
	assert.Equal(t, 8000, cfg.Context.MaxContextTokens)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.OverallTimeout)
	assert.False(t, cfg.AuditQueryText)
}

func TestGuardrailPreset(t *testing.T) {
	assert.Equal(t, "strict", GuardrailPreset("strict").Preset)
	assert.Equal(t, "paranoid", GuardrailPreset("PARANOID").Preset)
	assert.Equal(t, "moderate", GuardrailPreset("nonsense").Preset)
	assert.Equal(t, "moderate", GuardrailPreset("").Preset)
}

func TestApplyOverrides(t *testing.T) {
	cfg := ApplyOverrides(DefaultTenantConfig(), map[string]string{
		"kBase":            "16",
		"vectorWeight":     "0.5",
		"lexicalWeight":    "0.5",
		"rerankerEnabled":  "false",
		"guardrailPreset":  "strict",
		"maxContextTokens": "4000",
		"model":            "gpt-4o",
		"temperature":      "0.3",
		"timeoutMs":        "15000",
		"streaming":        "false",
		"freshDays":        "3",
		"defaultLang":      "ja",
		"auditQueryText":   "true",
	})

	assert.Equal(t, 16, cfg.Retrieval.KBase)
	assert.Equal(t, 0.5, cfg.Retrieval.VectorWeight)
	assert.False(t, cfg.Reranker.Enabled)
	assert.Equal(t, "strict", cfg.Guardrail.Preset)
	assert.Equal(t, 4000, cfg.Context.MaxContextTokens)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.False(t, cfg.LLM.Streaming)
	assert.Equal(t, 3, cfg.Freshness.FreshDays)
	assert.Equal(t, "ja", cfg.DefaultLang)
	assert.True(t, cfg.AuditQueryText)
}

func TestApplyOverridesThresholdKeysWinOverPreset(t *testing.T) {
	cfg := ApplyOverrides(DefaultTenantConfig(), map[string]string{
		"guardrailPreset": "strict",
		"minConfidence":   "0.8",
	})
	assert.Equal(t, 0.8, cfg.Guardrail.MinConfidence)
	// The rest of the preset still applies.
	assert.Equal(t, 0.60, cfg.Guardrail.MinTopScore)
}

func TestApplyOverridesMalformedValuesIgnored(t *testing.T) {
	defaults := DefaultTenantConfig()
	cfg := ApplyOverrides(defaults, map[string]string{
		"kBase":             "not-a-number",
		"vectorWeight":      "NaN please",
		"rerankerEnabled":   "maybe",
		"timeoutMs":         "-100",
		"fallbackProviders": "{broken json",
		"unknownKey":        "whatever",
	})
	assert.Equal(t, defaults.Retrieval.KBase, cfg.Retrieval.KBase)
	assert.Equal(t, defaults.Retrieval.VectorWeight, cfg.Retrieval.VectorWeight)
	assert.Equal(t, defaults.Reranker.Enabled, cfg.Reranker.Enabled)
	assert.Equal(t, defaults.LLM.Timeout, cfg.LLM.Timeout)
	assert.Nil(t, cfg.LLM.Fallbacks)
}

func TestApplyOverridesFallbackProviders(t *testing.T) {
	cfg := ApplyOverrides(DefaultTenantConfig(), map[string]string{
		"fallbackProviders": `[{"provider":"anthropic","model":"claude-sonnet-4-5"}]`,
	})
	require.Len(t, cfg.LLM.Fallbacks, 1)
	assert.Equal(t, "anthropic", cfg.LLM.Fallbacks[0].Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Fallbacks[0].Model)
}

func TestClamping(t *testing.T) {
	cfg := ApplyOverrides(DefaultTenantConfig(), map[string]string{
		"kBase":            "100",
		"noveltyAlpha":     "7",
		"rerankerTopOut":   "50",
		"rerankerTopIn":    "10",
		"overallTimeoutMs": "600000",
	})
	assert.Equal(t, 24, cfg.Retrieval.KBase)
	assert.Equal(t, 1.0, cfg.Context.NoveltyAlpha)
	assert.Equal(t, 10, cfg.Reranker.TopOut)
	assert.Equal(t, 45*time.Second, cfg.OverallTimeout)

	cfg = ApplyOverrides(DefaultTenantConfig(), map[string]string{
		"kBase":        "1",
		"noveltyAlpha": "-0.5",
	})
	assert.Equal(t, 8, cfg.Retrieval.KBase)
	assert.Equal(t, 0.0, cfg.Context.NoveltyAlpha)
}
