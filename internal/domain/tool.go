package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToolRequest is the structured tool-invocation document produced by the
// tool-handler agent: {"tool": name, "instructions": {"action": name, ...}}.
// A handler that cannot build a request reports {"error": ..., "details": ...}.
type ToolRequest struct {
	Tool         string           `json:"tool"`
	Instructions ToolInstructions `json:"instructions,omitempty"`
	Error        json.RawMessage  `json:"error,omitempty"`
	Details      json.RawMessage  `json:"details,omitempty"`
}

// HasError reports whether the document carried an "error" key. The key's
// presence is what counts: {"error": null} is still an error report.
func (r ToolRequest) HasError() bool { return r.Error != nil }

// ErrorText returns the "error" field as text. JSON strings are unquoted,
// any other JSON value is returned verbatim.
func (r ToolRequest) ErrorText() string { return rawText(r.Error) }

// DetailsText returns the "details" field as text.
func (r ToolRequest) DetailsText() string { return rawText(r.Details) }

// Action returns instructions.action.
func (r ToolRequest) Action() string { return r.Instructions.String("action") }

// String renders the document as compact JSON for display in merged text.
func (r ToolRequest) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("{tool: %s}", r.Tool)
	}
	return string(data)
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func rawText(raw json.RawMessage) string {
	if isNullJSON(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// ToolInstructions holds the action name and action-specific fields.
type ToolInstructions map[string]any

// String returns the field as text. Numbers are formatted without a trailing
// fraction when integral so "20" and 20 read the same.
func (i ToolInstructions) String(key string) string {
	switch v := i[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// ToolStatus is the coarse outcome of a tool execution.
type ToolStatus string

const (
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusError   ToolStatus = "error"
	ToolStatusInfo    ToolStatus = "info"
)

// ToolResult is what a tool executor returns for a ToolRequest.
type ToolResult struct {
	Status     ToolStatus `json:"status"`
	Data       any        `json:"data,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	Details    string     `json:"details,omitempty"`
	ImagePaths []string   `json:"image_path,omitempty"`

	// Side-effect markers, not part of the wire result.
	LogsUpdated     bool `json:"-"`
	CalendarUpdated bool `json:"-"`
}

// IsError reports whether the result represents a failure.
func (r *ToolResult) IsError() bool { return r != nil && r.Status == ToolStatusError }

// ToolExecutor performs the side effect described by a ToolRequest.
type ToolExecutor interface {
	Execute(ctx context.Context, req ToolRequest) (*ToolResult, error)
}
