package multiagent

import (
	"slices"
	"log/slog"
	"strings"

	"yinsen/internal/domain"
)

// Resolution is the outcome of a successful switch lookup.
type Resolution struct {
	Target  domain.AgentIdentity
	Changed bool // false when the target is already the current agent
}

// Resolver maps free-text switch targets to main agents through an explicit
// alias table of lowercase tokens.
type Resolver struct {
	registry *Registry
	order    []domain.AgentType
	aliases  map[domain.AgentType]map[string]struct{}
	logger   *slog.Logger
}

// NewResolver builds the alias table from the registry's main agents plus
// any configured extra aliases.
//
// The orchestrator answers only to its type token and display name. Every
// other main agent also answers to its spaced type ("finance manager"), its
// domain word ("finance") and "<domain> agent".
func NewResolver(registry *Registry, extra map[domain.AgentType][]string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		registry: registry,
		aliases:  make(map[domain.AgentType]map[string]struct{}),
		logger:   logger,
	}

	for _, id := range registry.Main() {
		set := make(map[string]struct{})
		add := func(tok string) {
			if tok = normalizeToken(tok); tok != "" {
				set[tok] = struct{}{}
			}
		}

		add(string(id.Type))
		add(id.Name)
		if id.Type != domain.AgentOrchestrator {
			spaced := strings.ReplaceAll(string(id.Type), "_", " ")
			word := strings.TrimSuffix(string(id.Type), "_manager")
			add(spaced)
			add(word)
			add(word + " agent")
		}
		for _, tok := range extra[id.Type] {
			add(tok)
		}

		r.order = append(r.order, id.Type)
		r.aliases[id.Type] = set
	}
	return r
}

// Aliases returns the accepted tokens for t, sorted.
func (r *Resolver) Aliases(t domain.AgentType) []string {
	set := r.aliases[t]
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	slices.Sort(out)
	return out
}

// Resolve looks up target. Surrounding whitespace and one layer of matching
// quotes are stripped and the comparison is case-insensitive. Resolving to
// current succeeds with Changed=false. An unknown target logs a warning and
// reports false.
func (r *Resolver) Resolve(target string, current domain.AgentType) (Resolution, bool) {
	tok := normalizeToken(target)
	for _, t := range r.order {
		if _, ok := r.aliases[t][tok]; !ok {
			continue
		}
		id, err := r.registry.Get(t)
		if err != nil {
			break
		}
		return Resolution{Target: id, Changed: t != current}, true
	}

	r.logger.Warn("unknown agent switch target",
		"target", target, "current_agent_type", string(current))
	return Resolution{}, false
}

// normalizeToken trims, strips one layer of matching quotes and lowercases.
func normalizeToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return strings.ToLower(s)
}
