package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"yinsen/internal/domain"
	"yinsen/internal/infra/tracer"
)

// Tool executes the actions of one tool name.
type Tool interface {
	Name() string
	// Schema is the JSON Schema of the instructions object.
	Schema() json.RawMessage
	Execute(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error)
}

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 30 * time.Second

// Executor holds named tools and implements domain.ToolExecutor.
type Executor struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an empty executor. A zero timeout means DefaultTimeout.
func NewExecutor(timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		tools:   make(map[string]Tool),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a tool. The tool is wrapped with schema validation; if the
// schema does not compile the tool is registered unwrapped and a warning is
// logged.
func (e *Executor) Register(t Tool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := t.Name()
	if _, exists := e.tools[name]; exists {
		return domain.NewDomainError("Executor.Register", domain.ErrDuplicate, name)
	}

	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		e.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
	} else {
		t = wrapped
	}

	e.tools[name] = t
	return nil
}

// Get retrieves a tool by name.
func (e *Executor) Get(name string) (Tool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Executor.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns the registered tool names in sorted order.
func (e *Executor) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the tool named by req under the executor timeout. Transient
// failures are reported as domain.ErrServerError so callers can retry them.
func (e *Executor) Execute(ctx context.Context, req domain.ToolRequest) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "tool.execute",
		trace.WithAttributes(
			tracer.StringAttr("tool.name", req.Tool),
			tracer.StringAttr("tool.action", req.Action()),
		),
	)
	defer span.End()

	t, err := e.Get(req.Tool)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := t.Execute(ctx, req.Instructions)
	if err != nil {
		tracer.RecordError(span, err)
		if classifyToolError(err) && !domain.IsRetryableError(err) {
			err = fmt.Errorf("%w: %w", domain.ErrServerError, err)
		}
		return nil, domain.WrapOp("tool."+req.Tool, err)
	}
	if result == nil {
		result = &domain.ToolResult{Status: domain.ToolStatusSuccess}
	}

	if result.IsError() {
		tracer.RecordError(span, fmt.Errorf("%s", firstNonEmpty(result.Message, result.Error)))
	} else {
		tracer.SetOK(span)
	}
	e.logger.Debug("tool finished",
		"tool", req.Tool,
		"action", req.Action(),
		"status", string(result.Status),
		"duration", time.Since(start),
	)
	return result, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
