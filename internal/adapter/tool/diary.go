package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"yinsen/internal/domain"
)

// DiaryTool accepts the diary actions but has no backend yet.
type DiaryTool struct {
	logger *slog.Logger
}

// NewDiaryTool creates the diary tool.
func NewDiaryTool(logger *slog.Logger) *DiaryTool { return &DiaryTool{logger: logger} }

func (t *DiaryTool) Name() string { return "diary" }

func (t *DiaryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["create_entry", "view_entry", "edit_entry", "delete_entry"]}
		},
		"required": ["action"]
	}`)
}

func (t *DiaryTool) Execute(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	unavailable := func(context.Context, domain.ToolInstructions) (*domain.ToolResult, error) {
		return Info("Diary is not available yet"), nil
	}
	return Execute(ctx, "tool.diary", t.logger, instr,
		Dispatch(actionOf, ActionMap[domain.ToolInstructions]{
			"create_entry": unavailable,
			"view_entry":   unavailable,
			"edit_entry":   unavailable,
			"delete_entry": unavailable,
		}),
	)
}
