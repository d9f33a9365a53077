package domain

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message. Conversation history entries use the
// same shape, which is also the persisted history format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Temperature      float64   `json:"temperature,omitempty"`
	TopP             float64   `json:"top_p,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID      string  `json:"id"`
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Usage   Usage   `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// HistoryStore is an agent-owned, append-only conversation log.
// Implementations are single-writer: only the owning agent appends or saves.
type HistoryStore interface {
	// Append adds an entry to the in-memory sequence.
	Append(msg Message)
	// Entries returns a copy of the whole sequence.
	Entries() []Message
	// Window returns a copy of the last n entries.
	Window(n int) []Message
	// Len returns the number of entries.
	Len() int
	// Save durably replaces the stored history with the in-memory sequence.
	Save() error
}
