package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"yinsen/internal/domain"
	"yinsen/internal/usecase/envelope"
	"yinsen/internal/usecase/multiagent"
)

// --- Mocks ---

type llmReply struct {
	content string
	err     error
}

type mockLLM struct {
	mu       sync.Mutex
	replies  []llmReply
	callIdx  int
	requests []domain.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.callIdx >= len(m.replies) {
		return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: "[response_to_user]: fallback"},
		}, nil
	}
	r := m.replies[m.callIdx]
	m.callIdx++
	if r.err != nil {
		return nil, r.err
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: r.content}}, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// scriptedAgent replays canned raw outputs and records every input.
type scriptedAgent struct {
	id      domain.AgentIdentity
	mu      sync.Mutex
	outputs []string
	inputs  []string
	fail    error
}

func (s *scriptedAgent) Identity() domain.AgentIdentity { return s.id }

func (s *scriptedAgent) Generate(_ context.Context, input string) GenerationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	if s.fail != nil {
		return GenerationResult{Envelope: DegradedEnvelope(s.fail), Err: s.fail}
	}
	raw := ""
	if len(s.outputs) > 0 {
		raw = s.outputs[0]
		s.outputs = s.outputs[1:]
	}
	return GenerationResult{Envelope: envelope.Parse(raw), Raw: raw}
}

func (s *scriptedAgent) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

type execFunc func(ctx context.Context, req domain.ToolRequest) (*domain.ToolResult, error)

type mockExecutor struct {
	mu    sync.Mutex
	fn    execFunc
	calls []domain.ToolRequest
}

func (m *mockExecutor) Execute(ctx context.Context, req domain.ToolRequest) (*domain.ToolResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return &domain.ToolResult{Status: domain.ToolStatusSuccess}, nil
	}
	return fn(ctx, req)
}

// failingStore keeps entries in memory but refuses to persist them.
type failingStore struct {
	entries []domain.Message
}

func (f *failingStore) Append(m domain.Message)   { f.entries = append(f.entries, m) }
func (f *failingStore) Entries() []domain.Message { return f.entries }
func (f *failingStore) Len() int                  { return len(f.entries) }
func (f *failingStore) Save() error               { return errors.New("disk full") }
func (f *failingStore) Window(n int) []domain.Message {
	if len(f.entries) > n {
		return f.entries[len(f.entries)-n:]
	}
	return f.entries
}

// --- Helpers ---

func testLogger() *slog.Logger { return slog.Default() }

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, CallTimeout: time.Second}
}

var (
	idOrchestrator = domain.AgentIdentity{Name: "Yinsen", Type: domain.AgentOrchestrator, Category: domain.CategoryMain}
	idFinance      = domain.AgentIdentity{Name: "Penny", Type: domain.AgentFinanceManager, Category: domain.CategoryMain}
	idStudy        = domain.AgentIdentity{Name: "Sage", Type: domain.AgentStudyManager, Category: domain.CategoryMain}
	idVisualizer   = domain.AgentIdentity{Name: "Iris", Type: domain.AgentVisualizer, Category: domain.CategoryHelper}
	idToolHandler  = domain.AgentIdentity{Name: "Wrench", Type: domain.AgentToolHandler, Category: domain.CategoryHelper}
)

func testRegistry(t *testing.T) *multiagent.Registry {
	t.Helper()
	r := multiagent.NewRegistry(testLogger())
	for _, id := range []domain.AgentIdentity{idOrchestrator, idFinance, idStudy, idVisualizer, idToolHandler} {
		if err := r.Register(id); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return r
}
