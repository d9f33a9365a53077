package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"yinsen/internal/domain"
	"yinsen/internal/infra/tracer"
)

// ActionHandler handles a single action for a tool.
type ActionHandler[P any] func(ctx context.Context, p P) (*domain.ToolResult, error)

// ActionMap maps action names to their handlers for an action-based tool.
type ActionMap[P any] map[string]ActionHandler[P]

// Dispatch creates a handler for Execute[P] that routes by action name.
//
// Usage:
//
//	func (t *FooTool) Execute(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
//	    return Execute(ctx, "tool.foo", t.logger, instr,
//	        Dispatch(func(p fooParams) string { return p.Action }, ActionMap[fooParams]{
//	            "create": t.create,
//	            "view":   t.view,
//	        }),
//	    )
//	}
func Dispatch[P any](
	getAction func(P) string,
	actions ActionMap[P],
) func(ctx context.Context, span trace.Span, p P) (*domain.ToolResult, error) {
	validActions := make([]string, 0, len(actions))
	for name := range actions {
		validActions = append(validActions, name)
	}
	sort.Strings(validActions)

	return func(ctx context.Context, span trace.Span, p P) (*domain.ToolResult, error) {
		action := getAction(p)
		span.SetAttributes(tracer.StringAttr("tool.action", action))

		handler, ok := actions[action]
		if !ok {
			return nil, BadAction(action, validActions...)
		}
		return handler(ctx, p)
	}
}

// Execute is the standard tool pipeline: decode instructions, start a span,
// run the handler, record the outcome.
//
// Instructions that do not decode into P become an error result. Handler
// errors are logged and returned unchanged; the caller decides how they
// surface.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	instr domain.ToolInstructions,
	handler func(ctx context.Context, span trace.Span, p P) (*domain.ToolResult, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName)
	defer span.End()

	p, err := DecodeInstructions[P](instr)
	if err != nil {
		tracer.RecordError(span, err)
		return Failure(fmt.Sprintf("invalid instructions: %v", err)), nil
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)
		return nil, err
	}
	if result.IsError() {
		tracer.RecordError(span, fmt.Errorf("%s", result.Message))
	} else {
		tracer.SetOK(span)
	}
	return result, nil
}

// actionOf is the action selector for tools that dispatch on the raw
// instructions and decode per-action parameters themselves.
func actionOf(instr domain.ToolInstructions) string { return instr.String("action") }

// DecodeInstructions converts the loosely typed instructions map into P.
func DecodeInstructions[P any](instr domain.ToolInstructions) (P, error) {
	var p P
	data, err := json.Marshal(instr)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

// Success returns a success result carrying data.
func Success(data any) *domain.ToolResult {
	return &domain.ToolResult{Status: domain.ToolStatusSuccess, Data: data}
}

// SuccessMessage returns a success result carrying only a message.
func SuccessMessage(msg string) *domain.ToolResult {
	return &domain.ToolResult{Status: domain.ToolStatusSuccess, Message: msg}
}

// Info returns an informational result, used for "nothing found" answers.
func Info(msg string) *domain.ToolResult {
	return &domain.ToolResult{Status: domain.ToolStatusInfo, Message: msg}
}

// Failure returns an error result the tool-handler can explain to the user.
func Failure(msg string) *domain.ToolResult {
	return &domain.ToolResult{Status: domain.ToolStatusError, Message: msg}
}

// BadAction returns an error for an unknown action with a hint listing valid actions.
func BadAction(got string, valid ...string) error {
	return domain.NewDomainError("tool.action", domain.ErrInvalidInput,
		fmt.Sprintf("unknown action %q (want: %s)", got, strings.Join(valid, ", ")))
}
