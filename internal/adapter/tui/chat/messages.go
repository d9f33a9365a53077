// Package chat is the Bubble Tea chat client for the assistant.
package chat

import "yinsen/internal/domain"

// TurnDoneMsg carries the result of a submitted turn. Gen identifies the
// request so results of cancelled requests can be dropped.
type TurnDoneMsg struct {
	Result domain.TurnResult
	Err    error
	Gen    uint64
}

// LogsMsg carries a fresh copy of the notification and calendar logs.
type LogsMsg struct {
	Notifications []string
	Calendar      []string
	Err           error
}

// ToolExecutedMsg mirrors a tool.executed bus event.
type ToolExecutedMsg struct {
	Name    string
	Action  string
	IsError bool
}

// AgentSwitchedMsg mirrors an agent.switched bus event.
type AgentSwitchedMsg struct {
	To domain.AgentIdentity
}

// LogsChangedMsg asks the model to reload the logs.
type LogsChangedMsg struct{}

// QuitMsg makes the program exit.
type QuitMsg struct{}

// StreamTickMsg drives progressive rendering of a reply.
type StreamTickMsg struct{}
