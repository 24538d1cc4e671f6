package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// OverrideSource supplies per-tenant configuration overrides as a flat
// string map keyed by the recognized override keys.
type OverrideSource interface {
	// Fetch returns the override map for a tenant. A missing tenant returns
	// an empty map and no error.
	Fetch(ctx context.Context, tenantID string) (map[string]string, error)
}

// StaticOverrides is an in-memory OverrideSource, used for embedded
// deployments and tests.
type StaticOverrides map[string]map[string]string

// Fetch returns the stored override map for the tenant, if any.
func (s StaticOverrides) Fetch(_ context.Context, tenantID string) (map[string]string, error) {
	return s[tenantID], nil
}

// RedisOverrides reads tenant overrides from a Redis hash per tenant.
type RedisOverrides struct {
	client *redis.Client
	prefix string
}

// NewRedisOverrides creates an OverrideSource backed by Redis. Keys are
// hashes named "<prefix><tenantID>".
func NewRedisOverrides(client *redis.Client, prefix string) *RedisOverrides {
	if prefix == "" {
		prefix = "shiori:tenant:"
	}
	return &RedisOverrides{client: client, prefix: prefix}
}

// Fetch loads the tenant's override hash. An absent key yields an empty map.
func (r *RedisOverrides) Fetch(ctx context.Context, tenantID string) (map[string]string, error) {
	vals, err := r.client.HGetAll(ctx, r.prefix+tenantID).Result()
	if err != nil {
		return nil, fmt.Errorf("config: fetch overrides for tenant %s: %w", tenantID, err)
	}
	return vals, nil
}

const resolverCacheSize = 1024

// Resolver resolves per-tenant configuration, caching resolved entries.
// Resolution never fails: an unknown tenant or an unreachable override
// source yields the built-in defaults.
type Resolver struct {
	defaults TenantConfig
	source   OverrideSource // nil = defaults only
	cache    *lru.Cache[string, TenantConfig]
	group    singleflight.Group
	logger   *slog.Logger
}

// NewResolver creates a Resolver. source may be nil, in which case every
// tenant resolves to defaults.
func NewResolver(defaults TenantConfig, source OverrideSource, logger *slog.Logger) *Resolver {
	cache, _ := lru.New[string, TenantConfig](resolverCacheSize)
	return &Resolver{
		defaults: defaults,
		source:   source,
		cache:    cache,
		logger:   logger,
	}
}

// Resolve returns the tenant's configuration. Cached after first resolution;
// concurrent resolutions of the same tenant are deduplicated.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) TenantConfig {
	if cfg, ok := r.cache.Get(tenantID); ok {
		return cfg
	}

	// Use a background-derived context for the override fetch: singleflight
	// shares the first caller's context, and a cancelled first caller must
	// not poison the result for waiters.
	v, _, _ := r.group.Do(tenantID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		cfg := r.defaults
		if r.source != nil {
			overrides, err := r.source.Fetch(fetchCtx, tenantID)
			if err != nil {
				r.logger.Warn("config: override fetch failed, using defaults",
					"tenant_id", tenantID, "error", err)
				// Do not cache a degraded resolution; the source may recover.
				return cfg, nil
			}
			if len(overrides) > 0 {
				cfg = ApplyOverrides(cfg, overrides)
			}
		}
		r.cache.Add(tenantID, cfg)
		return cfg, nil
	})
	_ = ctx // resolution is never bound to the request deadline
	return v.(TenantConfig)
}

// Invalidate drops a tenant's cached entry. Called when the tenant's
// configuration changes.
func (r *Resolver) Invalidate(tenantID string) {
	r.cache.Remove(tenantID)
}
