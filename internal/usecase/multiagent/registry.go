package multiagent

import (
	"log/slog"
	"strings"
	"sync"

	"yinsen/internal/domain"
)

// Registry is the static type-to-name directory of every configured agent.
// It is built once at startup and keeps registration order, which is also
// the order agents are listed to the model.
type Registry struct {
	mu     sync.RWMutex
	order  []domain.AgentType
	agents map[domain.AgentType]domain.AgentIdentity
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents: make(map[domain.AgentType]domain.AgentIdentity),
		logger: logger,
	}
}

// Register adds an agent identity. Returns ErrDuplicate if the type is
// already registered and ErrInvalidInput if the identity is incomplete.
func (r *Registry) Register(id domain.AgentIdentity) error {
	if id.Type == "" || strings.TrimSpace(id.Name) == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent type and name are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id.Type]; exists {
		return domain.ErrDuplicate
	}
	r.agents[id.Type] = id
	r.order = append(r.order, id.Type)
	r.logger.Info("agent registered", "agent_type", string(id.Type), "agent", id.Name, "category", string(id.Category))
	return nil
}

// Get returns the identity for the given type, or ErrNotFound.
func (r *Registry) Get(t domain.AgentType) (domain.AgentIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.agents[t]
	if !ok {
		return domain.AgentIdentity{}, domain.ErrNotFound
	}
	return id, nil
}

// List returns every identity in registration order.
func (r *Registry) List() []domain.AgentIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AgentIdentity, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.agents[t])
	}
	return out
}

// Main returns the main-category identities in registration order.
func (r *Registry) Main() []domain.AgentIdentity {
	var out []domain.AgentIdentity
	for _, id := range r.List() {
		if id.IsMain() {
			out = append(out, id)
		}
	}
	return out
}

// TypeToName returns the type to display name mapping.
func (r *Registry) TypeToName() map[domain.AgentType]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := make(map[domain.AgentType]string, len(r.agents))
	for t, id := range r.agents {
		m[t] = id.Name
	}
	return m
}

// FormatTypeToName renders the mapping the way it is shown to the model:
// {'orchestrator': 'Jarvis', 'finance_manager': 'Penny'}.
func (r *Registry) FormatTypeToName() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range r.List() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(string(id.Type)))
		b.WriteString(": ")
		b.WriteString(quote(id.Name))
	}
	b.WriteByte('}')
	return b.String()
}

func quote(s string) string {
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
