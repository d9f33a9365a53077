package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"yinsen/internal/domain"
	"yinsen/internal/infra/tracer"
	"yinsen/internal/usecase/envelope"
	"yinsen/internal/usecase/history"
)

// DefaultHistoryWindow is how many history entries are sent with a prompt.
const DefaultHistoryWindow = 10

// Degraded envelope text.
const (
	apologyText    = "I apologize, but I encountered an error processing your request."
	errorDetailFmt = "Error: "
)

// Generator is anything that turns input text into an envelope. Agent is the
// production implementation; tests substitute scripted fakes.
type Generator interface {
	Generate(ctx context.Context, input string) GenerationResult
	Identity() domain.AgentIdentity
}

// AgentDirectory renders the agent type to name map shown to the model.
type AgentDirectory interface {
	FormatTypeToName() string
}

// GenerationResult is the outcome of one Generate call. Envelope is always
// usable; Err is set when the result is the degraded fallback.
type GenerationResult struct {
	Envelope domain.Envelope
	Raw      string
	Err      error
}

// Degraded reports whether the envelope is the apology fallback.
func (r GenerationResult) Degraded() bool { return r.Err != nil }

// DegradedEnvelope is the envelope returned when generation fails.
func DegradedEnvelope(err error) domain.Envelope {
	return domain.Envelope{
		domain.KeyResponseToUser:   apologyText,
		domain.KeyDetailedResponse: errorDetailFmt + err.Error(),
	}
}

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	Identity            domain.AgentIdentity
	GeneralInstructions string
	Instructions        string
	Params              domain.GenerationParams

	LLM       domain.LLMProvider
	History   domain.HistoryStore
	Directory AgentDirectory
	Logger    *slog.Logger
	Retry     RetryPolicy
	Window    int              // history entries per prompt, default 10
	Now       func() time.Time // optional, defaults to time.Now
}

// Agent is one persona: fixed instructions, sampling parameters and an owned
// conversation history.
type Agent struct {
	deps    AgentDeps
	prompts promptBuilder
}

// NewAgent creates an agent. The persona text is assembled once here.
func NewAgent(deps AgentDeps) *Agent {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Window <= 0 {
		deps.Window = DefaultHistoryWindow
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.History == nil {
		deps.History = history.NewMemoryStore()
	}
	deps.Retry = deps.Retry.withDefaults()
	deps.Logger = deps.Logger.With("agent", deps.Identity.Name, "agent_type", string(deps.Identity.Type))

	persona := PersonaInstructions(deps.GeneralInstructions, deps.Identity, deps.Instructions)
	return &Agent{
		deps: deps,
		prompts: promptBuilder{
			identity: deps.Identity,
			persona:  persona,
			window:   deps.Window,
		},
	}
}

// Identity returns the agent's identity.
func (a *Agent) Identity() domain.AgentIdentity { return a.deps.Identity }

// History returns the agent's history store.
func (a *Agent) History() domain.HistoryStore { return a.deps.History }

// Generate records input in history, asks the model, records and persists the
// reply, and parses it. Failures never escape: they come back as a degraded
// envelope with Err set.
func (a *Agent) Generate(ctx context.Context, input string) GenerationResult {
	ctx, span := tracer.StartSpan(ctx, "agent.generate",
		trace.WithAttributes(
			tracer.StringAttr("agent.name", a.deps.Identity.Name),
			tracer.StringAttr("agent.type", string(a.deps.Identity.Type)),
		),
	)
	defer span.End()

	a.deps.History.Append(domain.Message{Role: domain.RoleUser, Content: input})

	msgs := a.prompts.build(
		a.deps.Now(),
		a.directory(),
		a.deps.History.Window(a.prompts.window),
		input,
	)

	raw, err := a.complete(ctx, msgs)
	if err != nil {
		tracer.RecordError(span, err)
		a.deps.Logger.Error("generation failed", "error", err)
		return GenerationResult{Envelope: DegradedEnvelope(err), Err: err}
	}

	a.deps.History.Append(domain.Message{Role: domain.RoleAssistant, Content: raw})
	if err := a.deps.History.Save(); err != nil {
		tracer.RecordError(span, err)
		a.deps.Logger.Error("history save failed", "error", err)
		return GenerationResult{Envelope: DegradedEnvelope(err), Raw: raw, Err: err}
	}

	tracer.SetOK(span)
	return GenerationResult{Envelope: envelope.Parse(raw), Raw: raw}
}

func (a *Agent) directory() string {
	if a.deps.Directory == nil {
		return "{}"
	}
	return a.deps.Directory.FormatTypeToName()
}

// complete calls the model under the retry policy and returns its text.
func (a *Agent) complete(ctx context.Context, msgs []domain.Message) (string, error) {
	if a.deps.LLM == nil {
		return "", domain.NewDomainError("Agent.Generate", domain.ErrProviderNotFound, a.deps.Identity.Name)
	}

	p := a.deps.Params
	req := domain.ChatRequest{
		Model:            p.Model,
		Messages:         msgs,
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
	}

	var raw string
	err := a.deps.Retry.Do(ctx, a.deps.Logger, "Agent.Generate", func(callCtx context.Context) error {
		resp, err := a.deps.LLM.Chat(callCtx, req)
		if err != nil {
			return err
		}
		if resp == nil || strings.TrimSpace(resp.Message.Content) == "" {
			return domain.NewDomainError("Agent.Generate", domain.ErrEmptyResponse, a.deps.LLM.Name())
		}
		raw = resp.Message.Content
		a.deps.Logger.Debug("generation completed",
			"provider", a.deps.LLM.Name(),
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
		)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	return raw, nil
}
