package llm

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shiori-ai/shiori/internal/config"
)

const poolSize = 256

// Pool caches provider clients keyed by (tenant, provider) so HTTP
// connection pools are reused across requests. Entries are evicted on
// tenant config change via Invalidate.
type Pool struct {
	cfg   config.Config
	mu    sync.Mutex
	cache *lru.Cache[string, Provider]
}

// NewPool creates a Pool building providers from process credentials.
func NewPool(cfg config.Config) (*Pool, error) {
	cache, err := lru.New[string, Provider](poolSize)
	if err != nil {
		return nil, fmt.Errorf("llm: create pool cache: %w", err)
	}
	return &Pool{cfg: cfg, cache: cache}, nil
}

// Get returns the cached provider for (tenantID, provider), constructing
// it on first use. Unknown or uncredentialed providers fail.
func (p *Pool) Get(tenantID, provider string) (Provider, error) {
	key := tenantID + "/" + provider

	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	built, err := p.build(provider)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, built)
	return built, nil
}

// Register seeds the cache with a pre-built provider for the tenant,
// bypassing credential-based construction. Used for custom providers and
// in tests.
func (p *Pool) Register(tenantID string, prov Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Add(tenantID+"/"+prov.Name(), prov)
}

// Invalidate evicts every cached provider for the tenant. Called when the
// tenant's configuration changes.
func (p *Pool) Invalidate(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := tenantID + "/"
	for _, key := range p.cache.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			p.cache.Remove(key)
		}
	}
}

func (p *Pool) build(provider string) (Provider, error) {
	switch provider {
	case ProviderOpenAI:
		if p.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("llm: openai provider requested but OPENAI_API_KEY is not set")
		}
		return NewOpenAIProvider(p.cfg.OpenAIAPIKey), nil
	case ProviderAnthropic:
		if p.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("llm: anthropic provider requested but ANTHROPIC_API_KEY is not set")
		}
		return NewAnthropicProvider(p.cfg.AnthropicAPIKey), nil
	case ProviderAzure:
		if p.cfg.AzureEndpoint == "" {
			return nil, fmt.Errorf("llm: azure provider requested but AZURE_OPENAI_ENDPOINT is not set")
		}
		return NewCompatibleProvider(ProviderAzure, p.cfg.AzureEndpoint, p.cfg.AzureAPIKey), nil
	case ProviderVllm:
		if p.cfg.VllmBaseURL == "" {
			return nil, fmt.Errorf("llm: vllm provider requested but SHIORI_VLLM_BASE_URL is not set")
		}
		return NewCompatibleProvider(ProviderVllm, p.cfg.VllmBaseURL, ""), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}
