package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RetrievalConfig controls the candidate pool and fusion weights.
type RetrievalConfig struct {
	KBase                int     `json:"k_base"`
	VectorWeight         float64 `json:"vector_weight"`
	LexicalWeight        float64 `json:"lexical_weight"`
	QueryAdaptiveWeights bool    `json:"query_adaptive_weights"`

	VectorTimeout  time.Duration `json:"vector_timeout"`
	LexicalTimeout time.Duration `json:"lexical_timeout"`
}

// RerankerConfig controls cross-encoder rescoring.
type RerankerConfig struct {
	Enabled         bool          `json:"enabled"`
	TopIn           int           `json:"top_in"`
	TopOut          int           `json:"top_out"`
	FallbackOnError bool          `json:"fallback_on_error"`
	Timeout         time.Duration `json:"timeout"`
}

// GuardrailConfig holds answerability thresholds.
type GuardrailConfig struct {
	MinConfidence  float64 `json:"min_confidence"`
	MinTopScore    float64 `json:"min_top_score"`
	MinMeanScore   float64 `json:"min_mean_score"`
	MinResultCount int     `json:"min_result_count"`
	Preset         string  `json:"preset,omitempty"`
}

// ContextConfig controls token-budgeted packing.
type ContextConfig struct {
	MaxContextTokens   int     `json:"max_context_tokens"`
	PerDocCap          int     `json:"per_doc_cap"`
	PerSectionCap      int     `json:"per_section_cap"`
	NoveltyAlpha       float64 `json:"novelty_alpha"`
	AnswerabilityBonus float64 `json:"answerability_bonus"`
}

// LLMConfig selects and bounds an LLM provider. Fallbacks are tried in
// order after the primary's retries are exhausted; their own Fallbacks
// fields are ignored.
type LLMConfig struct {
	Provider        string        `json:"provider"`
	Model           string        `json:"model"`
	Temperature     float64       `json:"temperature"`
	TopP            float64       `json:"top_p"`
	MaxOutputTokens int           `json:"max_output_tokens"`
	Timeout         time.Duration `json:"timeout"`
	MaxRetries      int           `json:"max_retries"`
	Streaming       bool          `json:"streaming"`
	Fallbacks       []LLMConfig   `json:"fallbacks,omitempty"`
}

// FreshnessConfig holds the day thresholds for freshness categories.
type FreshnessConfig struct {
	FreshDays  int `json:"fresh_days"`
	RecentDays int `json:"recent_days"`
}

// TenantConfig is the complete per-tenant pipeline configuration.
type TenantConfig struct {
	Retrieval      RetrievalConfig `json:"retrieval"`
	Reranker       RerankerConfig  `json:"reranker"`
	Guardrail      GuardrailConfig `json:"guardrail"`
	Context        ContextConfig   `json:"context"`
	LLM            LLMConfig       `json:"llm"`
	Freshness      FreshnessConfig `json:"freshness"`
	DefaultLang    string          `json:"default_lang"`
	OverallTimeout time.Duration   `json:"overall_timeout"`

	// AuditQueryText opts the tenant into persisting query text in audit
	// records. Off by default; document content is never persisted.
	AuditQueryText bool `json:"audit_query_text"`
}

// DefaultTenantConfig returns the built-in configuration used when a tenant
// has no overrides or is unknown. Resolution never fails.
func DefaultTenantConfig() TenantConfig {
	return TenantConfig{
		Retrieval: RetrievalConfig{
			KBase:                12,
			VectorWeight:         0.7,
			LexicalWeight:        0.3,
			QueryAdaptiveWeights: false,
			VectorTimeout:        5 * time.Second,
			LexicalTimeout:       3 * time.Second,
		},
		Reranker: RerankerConfig{
			Enabled:         true,
			TopIn:           20,
			TopOut:          8,
			FallbackOnError: true,
			Timeout:         10 * time.Second,
		},
		Guardrail: guardrailPresets["moderate"],
		Context: ContextConfig{
			MaxContextTokens:   8000,
			PerDocCap:          2,
			PerSectionCap:      1,
			NoveltyAlpha:       0.5,
			AnswerabilityBonus: 0.1,
		},
		LLM: LLMConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			Temperature:     0.1,
			MaxOutputTokens: 1024,
			Timeout:         25 * time.Second,
			MaxRetries:      2,
			Streaming:       true,
		},
		Freshness: FreshnessConfig{
			FreshDays:  7,
			RecentDays: 30,
		},
		DefaultLang:    "en",
		OverallTimeout: 45 * time.Second,
	}
}

// guardrailPresets are the named answerability threshold sets. An override
// may name one of these; explicit threshold overrides apply on top.
var guardrailPresets = map[string]GuardrailConfig{
	"permissive": {MinConfidence: 0.25, MinTopScore: 0.30, MinMeanScore: 0.20, MinResultCount: 1, Preset: "permissive"},
	"moderate":   {MinConfidence: 0.40, MinTopScore: 0.45, MinMeanScore: 0.30, MinResultCount: 1, Preset: "moderate"},
	"strict":     {MinConfidence: 0.55, MinTopScore: 0.60, MinMeanScore: 0.45, MinResultCount: 2, Preset: "strict"},
	"paranoid":   {MinConfidence: 0.70, MinTopScore: 0.75, MinMeanScore: 0.60, MinResultCount: 3, Preset: "paranoid"},
}

// GuardrailPreset returns the named threshold preset, or the moderate
// preset when the name is unknown.
func GuardrailPreset(name string) GuardrailConfig {
	if p, ok := guardrailPresets[strings.ToLower(name)]; ok {
		return p
	}
	return guardrailPresets["moderate"]
}

// ApplyOverrides returns a copy of cfg with the flat override map applied.
// Unknown keys are ignored; malformed values keep the existing setting.
// Recognized keys follow the external configuration contract.
func ApplyOverrides(cfg TenantConfig, overrides map[string]string) TenantConfig {
	// Preset first so explicit threshold keys win over it.
	if v, ok := overrides["guardrailPreset"]; ok {
		cfg.Guardrail = GuardrailPreset(v)
	}

	for key, val := range overrides {
		switch key {
		case "kBase":
			setInt(&cfg.Retrieval.KBase, val)
		case "vectorWeight":
			setFloat(&cfg.Retrieval.VectorWeight, val)
		case "lexicalWeight":
			setFloat(&cfg.Retrieval.LexicalWeight, val)
		case "queryAdaptiveWeights":
			setBool(&cfg.Retrieval.QueryAdaptiveWeights, val)
		case "vectorTimeoutMs":
			setMs(&cfg.Retrieval.VectorTimeout, val)
		case "lexicalTimeoutMs":
			setMs(&cfg.Retrieval.LexicalTimeout, val)
		case "rerankerEnabled":
			setBool(&cfg.Reranker.Enabled, val)
		case "rerankerTopIn":
			setInt(&cfg.Reranker.TopIn, val)
		case "rerankerTopOut":
			setInt(&cfg.Reranker.TopOut, val)
		case "rerankerFallbackOnError":
			setBool(&cfg.Reranker.FallbackOnError, val)
		case "rerankerTimeoutMs":
			setMs(&cfg.Reranker.Timeout, val)
		case "minConfidence":
			setFloat(&cfg.Guardrail.MinConfidence, val)
		case "minTopScore":
			setFloat(&cfg.Guardrail.MinTopScore, val)
		case "minMeanScore":
			setFloat(&cfg.Guardrail.MinMeanScore, val)
		case "minResultCount":
			setInt(&cfg.Guardrail.MinResultCount, val)
		case "maxContextTokens":
			setInt(&cfg.Context.MaxContextTokens, val)
		case "perDocCap":
			setInt(&cfg.Context.PerDocCap, val)
		case "perSectionCap":
			setInt(&cfg.Context.PerSectionCap, val)
		case "noveltyAlpha":
			setFloat(&cfg.Context.NoveltyAlpha, val)
		case "answerabilityBonus":
			setFloat(&cfg.Context.AnswerabilityBonus, val)
		case "provider":
			cfg.LLM.Provider = val
		case "model":
			cfg.LLM.Model = val
		case "temperature":
			setFloat(&cfg.LLM.Temperature, val)
		case "topP":
			setFloat(&cfg.LLM.TopP, val)
		case "maxOutputTokens":
			setInt(&cfg.LLM.MaxOutputTokens, val)
		case "timeoutMs":
			setMs(&cfg.LLM.Timeout, val)
		case "maxRetries":
			setInt(&cfg.LLM.MaxRetries, val)
		case "streaming":
			setBool(&cfg.LLM.Streaming, val)
		case "fallbackProviders":
			var fallbacks []LLMConfig
			if err := json.Unmarshal([]byte(val), &fallbacks); err == nil {
				cfg.LLM.Fallbacks = fallbacks
			}
		case "freshDays":
			setInt(&cfg.Freshness.FreshDays, val)
		case "recentDays":
			setInt(&cfg.Freshness.RecentDays, val)
		case "defaultLang":
			cfg.DefaultLang = val
		case "overallTimeoutMs":
			setMs(&cfg.OverallTimeout, val)
		case "auditQueryText":
			setBool(&cfg.AuditQueryText, val)
		}
	}

	return cfg.clamped()
}

// clamped enforces documented bounds on a resolved config.
func (c TenantConfig) clamped() TenantConfig {
	if c.Retrieval.KBase < 8 {
		c.Retrieval.KBase = 8
	}
	if c.Retrieval.KBase > 24 {
		c.Retrieval.KBase = 24
	}
	if c.Context.NoveltyAlpha < 0 {
		c.Context.NoveltyAlpha = 0
	}
	if c.Context.NoveltyAlpha > 1 {
		c.Context.NoveltyAlpha = 1
	}
	if c.Reranker.TopOut > c.Reranker.TopIn {
		c.Reranker.TopOut = c.Reranker.TopIn
	}
	if c.OverallTimeout <= 0 || c.OverallTimeout > 45*time.Second {
		c.OverallTimeout = 45 * time.Second
	}
	return c
}

func setInt(dst *int, val string) {
	if n, err := strconv.Atoi(val); err == nil {
		*dst = n
	}
}

func setFloat(dst *float64, val string) {
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		*dst = f
	}
}

func setBool(dst *bool, val string) {
	if b, err := strconv.ParseBool(val); err == nil {
		*dst = b
	}
}

func setMs(dst *time.Duration, val string) {
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Millisecond
	}
}
