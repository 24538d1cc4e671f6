package shiori

import "log/slog"

// Option configures an Engine.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	qdrantURL       string
	logger          *slog.Logger
	version         string
	embedder        EmbeddingProvider
	rerankScorer    RerankScorer
	tokenCounter    TokenCounter
	tenantOverrides map[string]map[string]string
	apiKeys         []APIKey
	disableServer   bool
}

// APIKey binds one Argon2id-hashed service key to the identity it
// authenticates as. Produce hashes with HashAPIKey.
type APIKey struct {
	Hash string
	User UserContext
}

// WithPort overrides the TCP port from config (SHIORI_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithQdrantURL overrides the Qdrant endpoint from config (QDRANT_URL).
func WithQdrantURL(url string) Option {
	return func(o *resolvedOptions) { o.qdrantURL = url }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint
// and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEmbeddingProvider replaces the built-in embedding client.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embedder = p }
}

// WithRerankScorer replaces the built-in HTTP cross-encoder client.
// Only the last call wins.
func WithRerankScorer(s RerankScorer) Option {
	return func(o *resolvedOptions) { o.rerankScorer = s }
}

// WithTokenCounter replaces the tokenizer used for context budgeting.
func WithTokenCounter(c TokenCounter) Option {
	return func(o *resolvedOptions) { o.tokenCounter = c }
}

// WithTenantOverrides supplies static per-tenant configuration overrides,
// keyed by tenant ID. Used instead of Redis for embedded deployments and
// tests; ignored when REDIS_URL is configured.
func WithTenantOverrides(overrides map[string]map[string]string) Option {
	return func(o *resolvedOptions) { o.tenantOverrides = overrides }
}

// WithAPIKeys enables X-API-Key authentication on the HTTP API for service
// callers that cannot hold a JWT.
func WithAPIKeys(keys []APIKey) Option {
	return func(o *resolvedOptions) { o.apiKeys = keys }
}

// WithoutServer skips HTTP server construction. For embedding consumers
// that call Ask/AskStream directly.
func WithoutServer() Option {
	return func(o *resolvedOptions) { o.disableServer = true }
}
