// Package config loads process configuration from environment variables and
// resolves per-tenant pipeline configuration with caching.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds process-wide configuration: backend endpoints, credentials,
// and server settings. Per-tenant pipeline knobs live in TenantConfig.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Vector store settings. VectorBackend selects "qdrant" or "pgvector".
	VectorBackend    string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Postgres: lexical index, pgvector search, and the audit sink.
	DatabaseURL string

	// Redis: optional per-tenant config override source.
	RedisURL string

	// Embedding provider settings.
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string // empty = api.openai.com
	EmbeddingModel      string
	EmbeddingDimensions int

	// Reranker service settings.
	RerankerURL    string
	RerankerAPIKey string

	// LLM provider credentials. Which providers a tenant uses is tenant config.
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	AzureEndpoint    string
	AzureAPIKey      string
	VllmBaseURL      string

	// Auth settings. Empty key paths generate an ephemeral dev key pair.
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiration     time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Rate limiting (per tenant, in-process token bucket).
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Operational settings.
	LogLevel         string
	AuditEnabled     bool
	AuditOptInText   bool // persist query text only when the tenant opts in
	StreamBufferSize int  // bounded per-request event buffer
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("SHIORI_PORT", 8080),
		ReadTimeout:         envDuration("SHIORI_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("SHIORI_WRITE_TIMEOUT", 120*time.Second),
		MaxRequestBodyBytes: int64(envInt("SHIORI_MAX_REQUEST_BODY_BYTES", 1*1024*1024)),
		VectorBackend:       envStr("SHIORI_VECTOR_BACKEND", "qdrant"),
		QdrantURL:           envStr("QDRANT_URL", ""),
		QdrantAPIKey:        envStr("QDRANT_API_KEY", ""),
		QdrantCollection:    envStr("QDRANT_COLLECTION", "shiori_chunks"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		RedisURL:            envStr("REDIS_URL", ""),
		EmbeddingAPIKey:     envStr("SHIORI_EMBEDDING_API_KEY", os.Getenv("OPENAI_API_KEY")),
		EmbeddingBaseURL:    envStr("SHIORI_EMBEDDING_BASE_URL", ""),
		EmbeddingModel:      envStr("SHIORI_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: envInt("SHIORI_EMBEDDING_DIMENSIONS", 1536),
		RerankerURL:         envStr("SHIORI_RERANKER_URL", ""),
		RerankerAPIKey:      envStr("SHIORI_RERANKER_API_KEY", ""),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		AnthropicAPIKey:     envStr("ANTHROPIC_API_KEY", ""),
		AzureEndpoint:       envStr("AZURE_OPENAI_ENDPOINT", ""),
		AzureAPIKey:         envStr("AZURE_OPENAI_API_KEY", ""),
		VllmBaseURL:         envStr("SHIORI_VLLM_BASE_URL", ""),
		JWTPrivateKeyPath:   envStr("SHIORI_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("SHIORI_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("SHIORI_JWT_EXPIRATION", 24*time.Hour),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "shiori"),
		RateLimitEnabled:    envBool("SHIORI_RATE_LIMIT_ENABLED", false),
		RateLimitRPS:        envFloat("SHIORI_RATE_LIMIT_RPS", 10),
		RateLimitBurst:      envInt("SHIORI_RATE_LIMIT_BURST", 20),
		LogLevel:            envStr("SHIORI_LOG_LEVEL", "info"),
		AuditEnabled:        envBool("SHIORI_AUDIT_ENABLED", true),
		AuditOptInText:      envBool("SHIORI_AUDIT_QUERY_TEXT", false),
		StreamBufferSize:    envInt("SHIORI_STREAM_BUFFER_SIZE", 512),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	switch c.VectorBackend {
	case "qdrant", "pgvector":
	default:
		return fmt.Errorf("config: SHIORI_VECTOR_BACKEND must be qdrant or pgvector, got %q", c.VectorBackend)
	}
	if c.VectorBackend == "pgvector" && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required for the pgvector backend")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: SHIORI_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: SHIORI_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.StreamBufferSize <= 0 {
		return fmt.Errorf("config: SHIORI_STREAM_BUFFER_SIZE must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
