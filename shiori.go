// Package shiori is the public API for embedding the Shiori query engine.
//
// Service and embedded consumers import this package to construct and run
// the engine without forking it:
//
//	app, err := shiori.New(
//	    shiori.WithVersion(version),
//	    shiori.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// Embedded consumers can skip the HTTP server and call Ask/AskStream
// directly:
//
//	app, err := shiori.New(shiori.WithoutServer())
//	answer, err := app.Ask(ctx, shiori.Query{...})
//
// The import graph enforces a strict no-cycle rule: shiori (root) imports
// internal/*, but internal/* never imports shiori (root). Public types
// (Query, Answer, Citation) are standalone structs with no internal imports;
// conversion helpers (toPublicAnswer, toInternalQuery) live here because
// this is the only file that sees both sides of the boundary.
package shiori

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/shiori-ai/shiori/api"
	"github.com/shiori-ai/shiori/internal/audit"
	"github.com/shiori-ai/shiori/internal/auth"
	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/llm"
	"github.com/shiori-ai/shiori/internal/model"
	"github.com/shiori-ai/shiori/internal/packer"
	"github.com/shiori-ai/shiori/internal/ratelimit"
	"github.com/shiori-ai/shiori/internal/rerank"
	"github.com/shiori-ai/shiori/internal/retrieval"
	"github.com/shiori-ai/shiori/internal/server"
	"github.com/shiori-ai/shiori/internal/stream"
	"github.com/shiori-ai/shiori/internal/synthesis"
	"github.com/shiori-ai/shiori/internal/telemetry"
	"github.com/shiori-ai/shiori/migrations"
)

// healthTimeout bounds each backend probe in the health endpoint.
const healthTimeout = 5 * time.Second

// App is the Shiori engine lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	orchestrator *synthesis.Orchestrator
	resolver     *config.Resolver
	srv          *server.Server // nil with WithoutServer
	jwtMgr       *auth.JWTManager
	pgIndex      *retrieval.PostgresIndex // nil when Postgres is not configured
	qdrantStore  *retrieval.QdrantStore   // nil when Qdrant is not configured
	redisClient  *redis.Client            // nil when Redis is not configured
	auditLog     *audit.Logger            // nil when auditing is disabled
	limiter      ratelimit.Limiter        // nil with WithoutServer
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the engine. It connects to the configured backends, runs
// migrations, wires the pipeline, and returns a ready-to-run App. It does
// NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.qdrantURL != "" {
		cfg.QdrantURL = o.qdrantURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("shiori starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	stageMetrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	app := &App{
		cfg:          cfg,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}
	// Close whatever was opened before a constructor error.
	fail := func(err error) (*App, error) {
		app.closeBackends()
		return nil, err
	}

	// Postgres: lexical index, pgvector search, and the audit sink.
	if cfg.DatabaseURL != "" {
		pg, err := retrieval.NewPostgresIndex(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		app.pgIndex = pg
		if err := pg.RunMigrations(context.Background(), migrations.FS); err != nil {
			return fail(fmt.Errorf("migrations: %w", err))
		}
	}

	// Qdrant vector store.
	if cfg.QdrantURL != "" {
		qs, err := retrieval.NewQdrantStore(retrieval.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("qdrant: %w", err))
		}
		app.qdrantStore = qs
		if err := qs.EnsureCollection(context.Background()); err != nil {
			return fail(fmt.Errorf("qdrant ensure collection: %w", err))
		}
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	}

	// Select search backends. Lexical prefers Postgres full-text search and
	// falls back to Qdrant's text match predicate.
	var vector retrieval.VectorStore
	switch cfg.VectorBackend {
	case "qdrant":
		if app.qdrantStore == nil {
			return fail(fmt.Errorf("vector backend is qdrant but QDRANT_URL is not set"))
		}
		vector = app.qdrantStore
	case "pgvector":
		vector = app.pgIndex
	}
	var lexical retrieval.LexicalIndex
	switch {
	case app.pgIndex != nil:
		lexical = app.pgIndex
	case app.qdrantStore != nil:
		lexical = app.qdrantStore
	default:
		return fail(fmt.Errorf("no lexical backend: set DATABASE_URL or QDRANT_URL"))
	}

	// Embedding provider — external override takes priority.
	var embedder retrieval.Embedder
	switch {
	case o.embedder != nil:
		embedder = o.embedder
	case cfg.EmbeddingAPIKey != "":
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", cfg.EmbeddingDimensions)
		embedder = retrieval.NewOpenAIEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		logger.Warn("no embedding provider configured, dense search disabled")
		embedder = &retrieval.NoopEmbedder{Dims: cfg.EmbeddingDimensions}
	}

	fanout := retrieval.NewFanout(embedder, vector, lexical, logger)

	// Cross-encoder scorer — external override takes priority.
	var scorer rerank.Scorer
	switch {
	case o.rerankScorer != nil:
		scorer = o.rerankScorer
	case cfg.RerankerURL != "":
		logger.Info("reranker: http", "url", cfg.RerankerURL)
		scorer = rerank.NewHTTPScorer(cfg.RerankerURL, cfg.RerankerAPIKey)
	default:
		logger.Info("reranker: disabled (no SHIORI_RERANKER_URL)")
	}
	reranker := rerank.New(scorer, logger)

	// Tenant config resolver. Redis overrides win over static ones.
	var source config.OverrideSource
	switch {
	case cfg.RedisURL != "":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		app.redisClient = redis.NewClient(opt)
		source = config.NewRedisOverrides(app.redisClient, "")
		logger.Info("tenant overrides: redis")
	case o.tenantOverrides != nil:
		source = config.StaticOverrides(o.tenantOverrides)
		logger.Info("tenant overrides: static", "tenants", len(o.tenantOverrides))
	}
	defaults := config.DefaultTenantConfig()
	app.resolver = config.NewResolver(defaults, source, logger)

	// LLM provider pool and client.
	pool, err := llm.NewPool(cfg)
	if err != nil {
		return fail(fmt.Errorf("llm: %w", err))
	}
	llmClient := llm.NewClient(pool, logger)

	// Context packer.
	counter := packer.TokenCounter(o.tokenCounter)
	if counter == nil {
		counter = packer.CounterForModel(defaults.LLM.Model)
	}
	pack := packer.New(counter, logger)

	// Audit trail. Postgres when available, structured logs otherwise.
	if cfg.AuditEnabled {
		var sink audit.Sink
		if app.pgIndex != nil {
			sink = audit.NewPostgresSink(app.pgIndex.Pool())
		} else {
			sink = audit.NewSlogSink(logger)
		}
		app.auditLog = audit.NewLogger(sink, 0, logger)
	}

	app.orchestrator = synthesis.New(synthesis.Deps{
		Resolver:         app.resolver,
		Fanout:           fanout,
		Reranker:         reranker,
		Packer:           pack,
		LLM:              llmClient,
		Audit:            app.auditLog,
		Logger:           logger,
		Metrics:          stageMetrics,
		StreamBufferSize: cfg.StreamBufferSize,
	})

	app.jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fail(fmt.Errorf("auth: %w", err))
	}

	var keyStore *auth.KeyStore
	if len(o.apiKeys) > 0 {
		entries := make([]auth.APIKeyEntry, len(o.apiKeys))
		for i, k := range o.apiKeys {
			entries[i] = auth.APIKeyEntry{
				Hash: k.Hash,
				User: model.UserContext{
					UserID:   k.User.UserID,
					TenantID: k.User.TenantID,
					GroupIDs: k.User.GroupIDs,
				},
			}
		}
		keyStore, err = auth.NewKeyStore(entries)
		if err != nil {
			return fail(fmt.Errorf("api keys: %w", err))
		}
		logger.Info("api key auth: enabled", "keys", len(entries))
	}

	if !o.disableServer {
		var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
		if cfg.RateLimitEnabled {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
			logger.Info("rate limiting: memory (in-process token bucket)",
				"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
		}
		app.limiter = limiter

		app.srv = server.New(server.ServerConfig{
			Orchestrator:        app.orchestrator,
			JWTMgr:              app.jwtMgr,
			Logger:              logger,
			APIKeys:             keyStore,
			Health:              app.healthCheck,
			RateLimiter:         limiter,
			OpenAPISpec:         api.OpenAPISpec,
			Port:                cfg.Port,
			ReadTimeout:         cfg.ReadTimeout,
			WriteTimeout:        cfg.WriteTimeout,
			Version:             version,
			MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		})
	}

	return app, nil
}

// Ask runs one query through the full pipeline and returns the final answer.
func (a *App) Ask(ctx context.Context, q Query) (Answer, error) {
	res, err := a.orchestrator.Ask(ctx, toInternalQuery(q))
	if err != nil {
		return Answer{}, err
	}
	return toPublicAnswer(res), nil
}

// AskStream runs one query and streams envelopes as synthesis progresses.
// The channel closes after a terminal done or error event.
func (a *App) AskStream(ctx context.Context, q Query) (<-chan StreamEvent, error) {
	events, err := a.orchestrator.AskStream(ctx, toInternalQuery(q))
	if err != nil {
		return nil, err
	}
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		for ev := range events {
			out <- toPublicEvent(ev)
		}
	}()
	return out, nil
}

// IssueToken mints a JWT for the given user, for dev tooling and tests.
// Returns the signed token and its expiry.
func (a *App) IssueToken(user UserContext) (string, time.Time, error) {
	return a.jwtMgr.IssueToken(model.UserContext{
		UserID:   user.UserID,
		TenantID: user.TenantID,
		GroupIDs: user.GroupIDs,
	})
}

// HashAPIKey hashes a service key with Argon2id for use in WithAPIKeys
// entries. The plaintext key is never stored.
func HashAPIKey(key string) (string, error) {
	return auth.HashAPIKey(key)
}

// InvalidateTenant drops a tenant's cached configuration so the next query
// re-reads its overrides.
func (a *App) InvalidateTenant(tenantID string) {
	a.resolver.Invalidate(tenantID)
}

// Handler returns the root HTTP handler, for tests and custom servers.
// Nil with WithoutServer.
func (a *App) Handler() http.Handler {
	if a.srv == nil {
		return nil
	}
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately. With WithoutServer, Run
// blocks on ctx alone.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	if a.srv != nil {
		go func() {
			if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, flushes the audit queue, and
// closes backend connections and the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shiori shutting down")

	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
	}
	if a.auditLog != nil {
		if err := a.auditLog.Close(); err != nil {
			a.logger.Error("audit drain error", "error", err)
		}
	}
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	a.closeBackends()

	a.logger.Info("shiori stopped")
	return nil
}

func (a *App) closeBackends() {
	if a.qdrantStore != nil {
		_ = a.qdrantStore.Close()
	}
	if a.pgIndex != nil {
		a.pgIndex.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
}

// healthCheck probes the configured backends. Any failure marks the engine
// unhealthy.
func (a *App) healthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	if a.pgIndex != nil {
		if err := a.pgIndex.Healthy(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.qdrantStore != nil {
		if err := a.qdrantStore.Healthy(ctx); err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
	}
	return nil
}

// ── Type converters ────────────────────────────────────────────────────────────

// toInternalQuery converts a public Query to the internal model.Query.
// Lives here because this is the only file that imports both sides of the
// boundary.
func toInternalQuery(q Query) model.Query {
	out := model.Query{
		Text: q.Text,
		User: model.UserContext{
			UserID:   q.User.UserID,
			TenantID: q.User.TenantID,
			GroupIDs: q.User.GroupIDs,
		},
		K:                q.K,
		Filter:           q.Filter,
		Format:           model.Format(q.Format),
		MaxContextTokens: q.MaxContextTokens,
	}
	if q.PriorGuardrail != nil {
		out.PriorGuardrail = &model.GuardrailDecision{
			IsAnswerable: q.PriorGuardrail.IsAnswerable,
			Confidence:   q.PriorGuardrail.Confidence,
			ReasonCode:   model.ReasonCode(q.PriorGuardrail.ReasonCode),
		}
	}
	return out
}

func toPublicAnswer(res model.SynthesisResult) Answer {
	citations := make(map[int]Citation, len(res.Citations))
	for n, c := range res.Citations {
		citations[n] = toPublicCitation(c)
	}
	return Answer{
		Outcome:          Outcome(res.Outcome),
		Text:             res.Answer,
		Citations:        citations,
		TokensUsed:       res.TokensUsed,
		SynthesisTime:    res.SynthesisTime,
		Confidence:       res.Confidence,
		ModelUsed:        res.ModelUsed,
		ContextTruncated: res.ContextTruncated,
		Freshness: FreshnessStats{
			Fresh:         res.Freshness.Fresh,
			Recent:        res.Freshness.Recent,
			Stale:         res.Freshness.Stale,
			Unknown:       res.Freshness.Unknown,
			OldestAgeDays: res.Freshness.OldestAgeDays,
			NewestAgeDays: res.Freshness.NewestAgeDays,
		},
		ReasonCode:  string(res.ReasonCode),
		Suggestions: res.Suggestions,
		Warnings:    res.Warnings,
	}
}

func toPublicCitation(c model.Citation) Citation {
	out := Citation{
		Number:   c.Number,
		DocID:    c.DocID,
		Source:   c.Source,
		URL:      c.URL,
		Filepath: c.Filepath,
		Version:  c.Version,
		Authors:  c.Authors,
	}
	if c.Freshness != nil {
		out.Freshness = &FreshnessInfo{
			AgeDays:       c.Freshness.AgeDays,
			Category:      string(c.Freshness.Category),
			HumanReadable: c.Freshness.HumanReadable,
			Badge:         c.Freshness.Badge,
		}
	}
	return out
}

func toPublicEvent(ev stream.Envelope) StreamEvent {
	return StreamEvent{
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		RequestID: ev.RequestID,
		Data:      ev.Data,
	}
}
