package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"yinsen/internal/domain"
	"yinsen/internal/infra/tracer"
	"yinsen/internal/usecase/envelope"
)

// toolIntentPrefix is prepended to the main agent's intent before it is
// handed to the tool-handler agent.
const toolIntentPrefix = "main_agent_response: "

// DispatchOutcome is everything the orchestrator needs from one tool round.
type DispatchOutcome struct {
	Request     domain.ToolRequest
	Instruction string // tool document as shown to the visualizer
	Result      *domain.ToolResult
	ResultText  string   // flattened result
	Images      []string // base64-encoded attachments

	LogsUpdated     bool
	CalendarUpdated bool
}

// IsError reports whether the round ended in a tool error.
func (o DispatchOutcome) IsError() bool { return o.Result.IsError() }

// ToolDispatcher runs the two-hop tool protocol: intent to tool-handler
// agent, tool document to executor.
type ToolDispatcher struct {
	handler  Generator
	executor domain.ToolExecutor
	retry    RetryPolicy
	logger   *slog.Logger
	readFile func(string) ([]byte, error)
}

// NewToolDispatcher creates a dispatcher.
func NewToolDispatcher(handler Generator, executor domain.ToolExecutor, retry RetryPolicy, logger *slog.Logger) *ToolDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolDispatcher{
		handler:  handler,
		executor: executor,
		retry:    retry.withDefaults(),
		logger:   logger,
		readFile: os.ReadFile,
	}
}

// Dispatch forwards intent to the tool-handler agent, decodes its document,
// executes it and prepares the result for presentation. It never fails:
// every problem becomes an error-status result.
func (d *ToolDispatcher) Dispatch(ctx context.Context, intent string) DispatchOutcome {
	ctx, span := tracer.StartSpan(ctx, "tool.dispatch")
	defer span.End()

	gen := d.handler.Generate(ctx, toolIntentPrefix+intent)

	var out DispatchOutcome
	if gen.Degraded() {
		out.Instruction = gen.Envelope.String(domain.KeyDetailedResponse)
		out.Result = malformed(gen.Err)
		return d.finish(span, out)
	}

	doc, err := envelope.DecodeToolDocument(gen.Raw)
	if err != nil {
		d.logger.Warn("tool document rejected", "error", err)
		out.Instruction = strings.TrimSpace(gen.Raw)
		out.Result = malformed(err)
		return d.finish(span, out)
	}
	out.Request = doc
	out.Instruction = doc.String()

	span.SetAttributes(
		tracer.StringAttr("tool.name", doc.Tool),
		tracer.StringAttr("tool.action", doc.Action()),
	)

	if doc.HasError() {
		d.logger.Info("tool handler reported an error",
			"error", doc.ErrorText(), "details", doc.DetailsText())
		out.Result = &domain.ToolResult{
			Status:  domain.ToolStatusError,
			Error:   doc.ErrorText(),
			Details: doc.DetailsText(),
		}
		return d.finish(span, out)
	}

	out.Result = d.execute(ctx, doc)
	out.LogsUpdated = out.Result.LogsUpdated
	out.CalendarUpdated = out.Result.CalendarUpdated
	out.Images = d.attachImages(out.Result)
	return d.finish(span, out)
}

func (d *ToolDispatcher) finish(span trace.Span, out DispatchOutcome) DispatchOutcome {
	out.ResultText = FlattenResult(out.Result)
	if out.IsError() {
		tracer.RecordError(span, fmt.Errorf("%w: %s", domain.ErrToolFailure, out.Result.Error))
	} else {
		tracer.SetOK(span)
	}
	return out
}

// execute calls the executor under the retry policy, converting errors and
// panics into error results.
func (d *ToolDispatcher) execute(ctx context.Context, doc domain.ToolRequest) *domain.ToolResult {
	logger := d.logger.With("tool", doc.Tool, "action", doc.Action())
	if d.executor == nil {
		return toolError(domain.NewDomainError("ToolDispatcher.Dispatch", domain.ErrToolNotFound, doc.Tool))
	}

	var result *domain.ToolResult
	err := d.retry.Do(ctx, logger, "tool."+doc.Tool, func(callCtx context.Context) error {
		r, err := d.safeExecute(callCtx, doc)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		logger.Error("tool execution failed", "error", err)
		return toolError(err)
	}
	if result == nil {
		return &domain.ToolResult{Status: domain.ToolStatusSuccess}
	}
	logger.Info("tool executed", "status", string(result.Status))
	return result
}

func (d *ToolDispatcher) safeExecute(ctx context.Context, doc domain.ToolRequest) (result *domain.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrToolFailure, r)
		}
	}()
	return d.executor.Execute(ctx, doc)
}

// attachImages base64-encodes every image_path entry and clears the list.
// Unreadable files are logged and skipped.
func (d *ToolDispatcher) attachImages(r *domain.ToolResult) []string {
	if r == nil || len(r.ImagePaths) == 0 {
		return nil
	}
	images := make([]string, 0, len(r.ImagePaths))
	for _, p := range r.ImagePaths {
		data, err := d.readFile(p)
		if err != nil {
			d.logger.Warn("image attachment skipped", "path", p, "error", err)
			continue
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}
	r.ImagePaths = nil
	return images
}

func malformed(err error) *domain.ToolResult {
	return &domain.ToolResult{
		Status:  domain.ToolStatusError,
		Error:   "MalformedToolResponse",
		Details: err.Error(),
	}
}

func toolError(err error) *domain.ToolResult {
	return &domain.ToolResult{
		Status:  domain.ToolStatusError,
		Error:   string(domain.ErrorCodeOf(err)),
		Details: err.Error(),
	}
}

// FlattenResult renders a result as {'status': 'success', 'message': '...'}.
// Strings are single-quoted; other values are written as compact JSON.
func FlattenResult(r *domain.ToolResult) string {
	if r == nil {
		return "None"
	}

	var b strings.Builder
	b.WriteByte('{')
	first := true
	field := func(key string, v any) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString("'" + key + "': ")
		if s, ok := v.(string); ok {
			b.WriteString("'" + s + "'")
			return
		}
		data, err := json.Marshal(v)
		if err != nil {
			fmt.Fprint(&b, v)
			return
		}
		b.Write(data)
	}

	field("status", string(r.Status))
	if r.Error != "" {
		field("error", r.Error)
	}
	if r.Details != "" {
		field("details", r.Details)
	}
	if r.Message != "" {
		field("message", r.Message)
	}
	if r.Data != nil {
		field("data", r.Data)
	}
	if len(r.ImagePaths) > 0 {
		field("image_path", r.ImagePaths)
	}
	b.WriteByte('}')
	return b.String()
}
