package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventTurnStarted    EventType = "turn.started"
	EventTurnCompleted  EventType = "turn.completed"
	EventAgentSwitched  EventType = "agent.switched"
	EventToolExecuted   EventType = "tool.executed"
	EventLogsUpdated    EventType = "logs.updated"
	EventCalendarUpdate EventType = "calendar.updated"
	EventShutdown       EventType = "system.shutdown"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	TurnID    string          `json:"turn_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// AgentSwitchedPayload is published when the current agent changes.
type AgentSwitchedPayload struct {
	From AgentIdentity `json:"from"`
	To   AgentIdentity `json:"to"`
}

// ToolExecutedPayload is published after every tool dispatch.
type ToolExecutedPayload struct {
	Tool    string     `json:"tool"`
	Action  string     `json:"action"`
	Status  ToolStatus `json:"status"`
	IsError bool       `json:"is_error"`
}
