package domain

// AgentType identifies the role an agent plays in the system.
type AgentType string

// Known agent types. Main agents serve user turns directly; helper agents are
// used internally by the orchestrator.
const (
	AgentOrchestrator   AgentType = "orchestrator"
	AgentFinanceManager AgentType = "finance_manager"
	AgentStudyManager   AgentType = "study_manager"
	AgentHealthManager  AgentType = "health_manager"
	AgentVisualizer     AgentType = "visualizer"
	AgentToolHandler    AgentType = "tool_handler"
)

// AgentCategory separates user-facing agents from internal helpers.
type AgentCategory string

const (
	CategoryMain   AgentCategory = "main"
	CategoryHelper AgentCategory = "helper"
)

// AgentIdentity describes a named agent instance in the multi-agent setup.
type AgentIdentity struct {
	Name     string        `json:"name" yaml:"name"`
	Type     AgentType     `json:"type" yaml:"type"`
	Category AgentCategory `json:"category" yaml:"category"`
}

// IsMain reports whether the agent can be the current agent.
func (a AgentIdentity) IsMain() bool { return a.Category == CategoryMain }

// AgentStatus is a diagnostic snapshot of one main agent.
type AgentStatus struct {
	Name           string    `json:"name"`
	Type           AgentType `json:"type"`
	Current        bool      `json:"current"`
	Aliases        []string  `json:"aliases"`
	HistoryEntries int       `json:"history_entries"`
}

// GenerationParams are the sampling parameters sent with every model call.
type GenerationParams struct {
	Model            string  `json:"model,omitempty" yaml:"model"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty"`
}
