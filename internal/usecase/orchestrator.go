package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"yinsen/internal/domain"
	"yinsen/internal/infra/tracer"
	"yinsen/internal/usecase/multiagent"
)

// SwitchResolver maps a free-text switch target to a main agent.
type SwitchResolver interface {
	Resolve(target string, current domain.AgentType) (multiagent.Resolution, bool)
	Aliases(t domain.AgentType) []string
}

// historyHolder is implemented by generators that keep a conversation log.
type historyHolder interface {
	History() domain.HistoryStore
}

// OrchestratorDeps holds injected dependencies for the orchestrator.
type OrchestratorDeps struct {
	MainAgents []Generator // main-category agents, any order
	Visualizer Generator
	Dispatcher *ToolDispatcher
	Resolver   SwitchResolver
	Initial    domain.AgentType // defaults to orchestrator
	Bus        domain.EventBus  // optional, nil = no events
	Logger     *slog.Logger
}

// Orchestrator runs one user turn at a time through the current main agent,
// the optional switch or tool branch, and the visualizer. The current agent
// is the only state it carries across turns.
type Orchestrator struct {
	deps   OrchestratorDeps
	agents map[domain.AgentType]Generator
	logger *slog.Logger

	mu      sync.RWMutex
	current Generator
}

// NewOrchestrator validates the agent set and selects the initial agent.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Visualizer == nil {
		return nil, domain.NewDomainError("NewOrchestrator", domain.ErrInvalidInput, "visualizer agent is required")
	}
	if deps.Resolver == nil {
		return nil, domain.NewDomainError("NewOrchestrator", domain.ErrInvalidInput, "switch resolver is required")
	}

	agents := make(map[domain.AgentType]Generator, len(deps.MainAgents))
	for _, g := range deps.MainAgents {
		id := g.Identity()
		if !id.IsMain() {
			return nil, domain.NewDomainError("NewOrchestrator", domain.ErrInvalidInput,
				fmt.Sprintf("%s is not a main agent", id.Type))
		}
		if _, dup := agents[id.Type]; dup {
			return nil, domain.NewDomainError("NewOrchestrator", domain.ErrDuplicate, string(id.Type))
		}
		agents[id.Type] = g
	}

	initial := deps.Initial
	if initial == "" {
		initial = domain.AgentOrchestrator
	}
	current, ok := agents[initial]
	if !ok {
		return nil, domain.NewDomainError("NewOrchestrator", domain.ErrUnknownAgent, string(initial))
	}

	return &Orchestrator{
		deps:    deps,
		agents:  agents,
		logger:  deps.Logger,
		current: current,
	}, nil
}

// CurrentAgent returns the identity of the agent serving the next turn.
func (o *Orchestrator) CurrentAgent() domain.AgentIdentity {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current.Identity()
}

// Agents describes every main agent in a stable order: the initial agent
// first, then by type.
func (o *Orchestrator) Agents() []domain.AgentStatus {
	current := o.CurrentAgent()
	out := make([]domain.AgentStatus, 0, len(o.agents))
	for t, g := range o.agents {
		id := g.Identity()
		st := domain.AgentStatus{
			Name:    id.Name,
			Type:    t,
			Current: id.Type == current.Type,
			Aliases: o.deps.Resolver.Aliases(t),
		}
		if h, ok := g.(historyHolder); ok && h.History() != nil {
			st.HistoryEntries = h.History().Len()
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b domain.AgentStatus) int {
		switch {
		case a.Type == b.Type:
			return 0
		case a.Type == o.initial():
			return -1
		case b.Type == o.initial():
			return 1
		}
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return out
}

func (o *Orchestrator) initial() domain.AgentType {
	if o.deps.Initial == "" {
		return domain.AgentOrchestrator
	}
	return o.deps.Initial
}

// Reset makes t the current agent.
func (o *Orchestrator) Reset(t domain.AgentType) error {
	g, ok := o.agents[t]
	if !ok {
		return domain.NewDomainError("Orchestrator.Reset", domain.ErrUnknownAgent, string(t))
	}
	o.mu.Lock()
	o.current = g
	o.mu.Unlock()
	return nil
}

// HandleTurn processes one user input. It always returns a result; agent and
// tool failures surface as apologetic text and flags, never as errors.
func (o *Orchestrator) HandleTurn(ctx context.Context, input string, format domain.ResponseFormat) domain.TurnResult {
	turnID := ulid.Make().String()
	logger := o.logger.With("turn_id", turnID)

	ctx, span := tracer.StartSpan(ctx, "orchestrator.turn",
		trace.WithAttributes(tracer.StringAttr("turn.id", turnID)),
	)
	defer span.End()

	o.mu.RLock()
	current := o.current
	o.mu.RUnlock()

	res := domain.TurnResult{
		TurnID:        turnID,
		YoutubeURLs:   []string{},
		DisplayImages: []string{},
	}

	gen := current.Generate(ctx, input)
	env := gen.Envelope
	res.Degraded = gen.Degraded()

	var merged *mergedText
	switch {
	case env.WantsSwitch():
		res.Branch = domain.BranchSwitch
		switched := o.switchTo(ctx, turnID, current, env.String(domain.KeyInvokeAgentName))
		merged = switchMerged(env, switched)

	case env.WantsTool():
		res.Branch = domain.BranchTool
		out := o.dispatch(ctx, env.String(domain.KeyToolUsageResponse))
		res.ToolError = out.IsError()
		res.LogsUpdated = out.LogsUpdated
		res.CalendarUpdated = out.CalendarUpdated
		res.DisplayImages = append(res.DisplayImages, out.Images...)
		o.publish(ctx, domain.EventToolExecuted, turnID, domain.ToolExecutedPayload{
			Tool:    out.Request.Tool,
			Action:  out.Request.Action(),
			Status:  out.Result.Status,
			IsError: out.IsError(),
		})
		merged = toolMerged(env, out)

	default:
		res.Branch = domain.BranchPlain
		merged = plainMerged(env)
	}

	span.SetAttributes(tracer.StringAttr("turn.branch", string(res.Branch)))

	vis := o.deps.Visualizer.Generate(ctx, withFormat(merged, format))
	res.FinalResponseToUser = firstNonEmpty(
		vis.Envelope.String(domain.KeyFinalResponseToUser),
		vis.Envelope.String(domain.KeyResponseToUser),
	)
	res.SummarizedResponse = firstNonEmpty(
		vis.Envelope.String(domain.KeySummarizedResponse),
		res.FinalResponseToUser,
	)
	res.Degraded = res.Degraded || vis.Degraded()

	id := o.CurrentAgent()
	res.CurrentAgentName = id.Name
	res.CurrentAgentType = string(id.Type)

	if res.LogsUpdated || res.CalendarUpdated {
		o.publish(ctx, domain.EventLogsUpdated, turnID, map[string]bool{
			"logs_updated":     res.LogsUpdated,
			"calendar_updated": res.CalendarUpdated,
		})
	}
	o.publish(ctx, domain.EventTurnCompleted, turnID, res)

	logger.Info("turn completed",
		"branch", string(res.Branch),
		"agent", id.Name,
		"tool_error", res.ToolError,
		"degraded", res.Degraded,
	)
	if res.Degraded || res.ToolError {
		tracer.RecordError(span, fmt.Errorf("turn %s finished degraded", turnID))
	} else {
		tracer.SetOK(span)
	}
	return res
}

// switchTo resolves target and makes it current on success.
func (o *Orchestrator) switchTo(ctx context.Context, turnID string, current Generator, target string) bool {
	from := current.Identity()
	resolution, ok := o.deps.Resolver.Resolve(target, from.Type)
	if !ok {
		return false
	}
	next, found := o.agents[resolution.Target.Type]
	if !found {
		o.logger.Warn("switch target has no running agent",
			"target", target, "agent_type", string(resolution.Target.Type))
		return false
	}
	if !resolution.Changed {
		return true
	}

	o.mu.Lock()
	o.current = next
	o.mu.Unlock()

	o.logger.Info("agent switched",
		"turn_id", turnID, "from", from.Name, "to", resolution.Target.Name)
	o.publish(ctx, domain.EventAgentSwitched, turnID, domain.AgentSwitchedPayload{
		From: from,
		To:   next.Identity(),
	})
	return true
}

func (o *Orchestrator) dispatch(ctx context.Context, intent string) DispatchOutcome {
	if o.deps.Dispatcher == nil {
		err := domain.NewDomainError("Orchestrator.HandleTurn", domain.ErrToolNotFound, "no tool dispatcher configured")
		r := toolError(err)
		return DispatchOutcome{Result: r, ResultText: FlattenResult(r)}
	}
	return o.deps.Dispatcher.Dispatch(ctx, intent)
}

// publish sends an event on the bus if it is configured.
func (o *Orchestrator) publish(ctx context.Context, eventType domain.EventType, turnID string, payload any) {
	if o.deps.Bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	o.deps.Bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		TurnID:    turnID,
		Payload:   raw,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
