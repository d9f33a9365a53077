package llm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"yinsen/internal/domain"
	"yinsen/internal/infra/config"
)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// Register adds a provider under its Name.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewProvider builds one provider from its config entry.
func NewProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg, logger), nil
	case "anthropic":
		return NewAnthropicProvider(cfg, logger), nil
	case "bedrock":
		return NewBedrockProvider(ctx, cfg, logger)
	default:
		return nil, domain.NewDomainError("llm.NewProvider", domain.ErrInvalidInput, "unknown provider type "+cfg.Type)
	}
}

// Build creates every configured provider, wrapped in a circuit breaker
// when enabled.
func Build(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		p, err := NewProvider(ctx, pc, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Resolve returns the named provider, or the default one when name is
// empty. With failover enabled the configured fallbacks back it up.
func (r *Registry) Resolve(name string, cfg config.LLMConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	if name == "" {
		name = cfg.DefaultProvider
	}
	primary, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if !cfg.Failover.Enabled {
		return primary, nil
	}
	var fallbacks []domain.LLMProvider
	for _, fb := range cfg.Failover.Fallbacks {
		if fb == name {
			continue
		}
		p, err := r.Get(fb)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, p)
	}
	if len(fallbacks) == 0 {
		return primary, nil
	}
	return NewFailoverProvider(primary, fallbacks, logger), nil
}
