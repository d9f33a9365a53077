package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"yinsen/internal/domain"
	"yinsen/internal/infra/config"
	"yinsen/internal/usecase"
	"yinsen/internal/usecase/history"
	"yinsen/internal/usecase/multiagent"
)

// providerFunc resolves an agent definition's provider name ("" = default).
type providerFunc func(name string) (domain.LLMProvider, error)

// AgentComponents holds the constructed agent set.
type AgentComponents struct {
	Registry   *multiagent.Registry
	Resolver   *multiagent.Resolver
	Main       []usecase.Generator
	Visualizer *usecase.Agent
	Handler    *usecase.Agent
	Histories  []domain.HistoryStore
}

// agentCategory reports whether an agent type serves users directly.
func agentCategory(t domain.AgentType) domain.AgentCategory {
	switch t {
	case domain.AgentVisualizer, domain.AgentToolHandler:
		return domain.CategoryHelper
	default:
		return domain.CategoryMain
	}
}

func toParams(g config.GenerationConfig) domain.GenerationParams {
	return domain.GenerationParams{
		Model:            g.Model,
		Temperature:      g.Temperature,
		MaxTokens:        g.MaxTokens,
		TopP:             g.TopP,
		FrequencyPenalty: g.FrequencyPenalty,
		PresencePenalty:  g.PresencePenalty,
	}
}

func toRetryPolicy(r config.RetryConfig) usecase.RetryPolicy {
	return usecase.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		CallTimeout: r.CallTimeout,
	}
}

// readInstructions loads a prompt file. A missing general file is allowed
// and yields no preamble.
func readInstructions(path string, required bool) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read instructions %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// initAgents builds the registry, switch resolver and one Agent per
// definition.
func initAgents(cfg config.AgentsConfig, retry config.RetryConfig, providers providerFunc, log *slog.Logger) (*AgentComponents, error) {
	generalMain, err := readInstructions(cfg.GeneralMainInstructions, false)
	if err != nil {
		return nil, err
	}
	generalHelper, err := readInstructions(cfg.GeneralHelperInstructions, false)
	if err != nil {
		return nil, err
	}

	registry := multiagent.NewRegistry(log)
	aliases := make(map[domain.AgentType][]string)
	for _, def := range cfg.Definitions {
		t := domain.AgentType(def.Type)
		id := domain.AgentIdentity{Name: def.Name, Type: t, Category: agentCategory(t)}
		if err := registry.Register(id); err != nil {
			return nil, fmt.Errorf("register %s: %w", def.Type, err)
		}
		if len(def.Aliases) > 0 {
			aliases[t] = def.Aliases
		}
	}

	comp := &AgentComponents{
		Registry: registry,
		Resolver: multiagent.NewResolver(registry, aliases, log),
	}

	for _, def := range cfg.Definitions {
		id, err := registry.Get(domain.AgentType(def.Type))
		if err != nil {
			return nil, err
		}
		llm, err := providers(def.Provider)
		if err != nil {
			return nil, fmt.Errorf("agent %s provider: %w", def.Name, err)
		}
		instructions, err := readInstructions(def.Instructions, true)
		if err != nil {
			return nil, err
		}

		general := generalMain
		if !id.IsMain() {
			general = generalHelper
		}

		var store domain.HistoryStore
		if def.History != "" {
			store = history.NewFileStore(def.History, log)
		} else {
			store = history.NewMemoryStore()
		}
		comp.Histories = append(comp.Histories, store)

		agent := usecase.NewAgent(usecase.AgentDeps{
			Identity:            id,
			GeneralInstructions: general,
			Instructions:        instructions,
			Params:              toParams(def.Params.Merge(cfg.Defaults)),
			LLM:                 llm,
			History:             store,
			Directory:           registry,
			Logger:              log,
			Retry:               toRetryPolicy(retry),
			Window:              cfg.HistoryWindow,
		})

		switch id.Type {
		case domain.AgentVisualizer:
			comp.Visualizer = agent
		case domain.AgentToolHandler:
			comp.Handler = agent
		default:
			comp.Main = append(comp.Main, agent)
		}
	}

	if comp.Visualizer == nil || comp.Handler == nil {
		return nil, domain.NewDomainError("initAgents", domain.ErrInvalidInput, "visualizer and tool_handler must be defined")
	}
	return comp, nil
}
