package domain

import (
	"context"
	"strings"
	"time"
)

// ResponseFormat tells the visualizer how to render the final answer.
type ResponseFormat string

const (
	FormatText ResponseFormat = "TEXT"
	FormatHTML ResponseFormat = "HTML"
)

// ParseResponseFormat maps free text to a format; anything but HTML is TEXT.
func ParseResponseFormat(s string) ResponseFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatHTML)) {
		return FormatHTML
	}
	return FormatText
}

// Branch is the path a turn took through the orchestrator.
type Branch string

const (
	BranchPlain  Branch = "plain"
	BranchSwitch Branch = "switch"
	BranchTool   Branch = "tool"
)

// TurnResult is the orchestrator's per-turn output. It is not persisted.
type TurnResult struct {
	TurnID              string   `json:"turn_id"`
	FinalResponseToUser string   `json:"final_response_to_user"`
	SummarizedResponse  string   `json:"summarized_response"`
	CurrentAgentName    string   `json:"current_agent_name"`
	CurrentAgentType    string   `json:"current_agent_type"`
	LogsUpdated         bool     `json:"logs_updated"`
	CalendarUpdated     bool     `json:"calendar_updated"`
	YoutubeURLs         []string `json:"youtube_urls"`
	DisplayImages       []string `json:"display_images"`

	Branch    Branch `json:"branch,omitempty"`
	ToolError bool   `json:"tool_error,omitempty"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// TurnRecord is one row of the turn journal.
type TurnRecord struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Source        string    `json:"source"`
	Input         string    `json:"input"`
	AgentType     string    `json:"agent_type"`
	AgentName     string    `json:"agent_name"`
	Branch        Branch    `json:"branch"`
	ToolError     bool      `json:"tool_error"`
	FinalResponse string    `json:"final_response"`
	Summary       string    `json:"summary"`
}

// TurnRecorder persists completed turns for later inspection.
type TurnRecorder interface {
	Record(ctx context.Context, rec TurnRecord) error
}
