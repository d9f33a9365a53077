package main

import (
	"context"
	"log/slog"

	"yinsen/internal/adapter/llm"
	"yinsen/internal/domain"
	"yinsen/internal/infra/config"
)

// initLLM builds every configured provider and returns a resolver for
// agent definitions. Resolved providers are cached so agents sharing a
// provider also share its circuit breaker and failover chain.
func initLLM(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (providerFunc, error) {
	reg, err := llm.Build(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("llm providers ready", "providers", reg.List(), "default", cfg.DefaultProvider)

	resolved := make(map[string]domain.LLMProvider)
	return func(name string) (domain.LLMProvider, error) {
		if name == "" {
			name = cfg.DefaultProvider
		}
		if p, ok := resolved[name]; ok {
			return p, nil
		}
		p, err := reg.Resolve(name, cfg, log)
		if err != nil {
			return nil, err
		}
		resolved[name] = p
		return p, nil
	}, nil
}
