package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yinsen/internal/domain"
	"yinsen/internal/usecase/eventbus"
	"yinsen/internal/usecase/history"
	"yinsen/internal/usecase/multiagent"
)

type orchestratorFixture struct {
	orch       *Orchestrator
	main       *scriptedAgent
	finance    *scriptedAgent
	study      *scriptedAgent
	visualizer *scriptedAgent
	handler    *scriptedAgent
	executor   *mockExecutor
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		main:       &scriptedAgent{id: idOrchestrator},
		finance:    &scriptedAgent{id: idFinance},
		study:      &scriptedAgent{id: idStudy},
		visualizer: &scriptedAgent{id: idVisualizer},
		handler:    &scriptedAgent{id: idToolHandler},
		executor:   &mockExecutor{},
	}
	reg := testRegistry(t)
	orch, err := NewOrchestrator(OrchestratorDeps{
		MainAgents: []Generator{f.main, f.finance, f.study},
		Visualizer: f.visualizer,
		Dispatcher: NewToolDispatcher(f.handler, f.executor, fastRetry(), testLogger()),
		Resolver:   multiagent.NewResolver(reg, nil, testLogger()),
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func visualizerReply(final, summary string) string {
	return "[final_response_to_user]: " + final + "\n[summarized_response]: " + summary
}

func TestHandleTurnPlain(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[response_to_user]: 4\n[detailed_response]: 4\n[tool_usage_flag]: false\n[invoke_another_agent_flag]: false"}
	f.visualizer.outputs = []string{visualizerReply("4", "four")}

	res := f.orch.HandleTurn(t.Context(), "What's 2+2", domain.FormatText)

	assert.Equal(t, []string{"What's 2+2"}, f.main.seen())
	assert.Equal(t, []string{"[main_agent_response]: 4\n [response_format]: TEXT"}, f.visualizer.seen())
	assert.Equal(t, "4", res.FinalResponseToUser)
	assert.Equal(t, "four", res.SummarizedResponse)
	assert.Equal(t, domain.BranchPlain, res.Branch)
	assert.Equal(t, "Yinsen", res.CurrentAgentName)
	assert.Equal(t, "orchestrator", res.CurrentAgentType)
	assert.NotEmpty(t, res.TurnID)
	assert.NotNil(t, res.YoutubeURLs)
	assert.Empty(t, res.DisplayImages)
	assert.Empty(t, f.handler.seen())
}

func TestHandleTurnFormatDirective(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: hi", "[detailed_response]: hi"}

	f.orch.HandleTurn(t.Context(), "a", domain.FormatHTML)
	f.orch.HandleTurn(t.Context(), "b", domain.ResponseFormat("markdown"))

	seen := f.visualizer.seen()
	require.Len(t, seen, 2)
	assert.True(t, strings.HasSuffix(seen[0], "\n [response_format]: HTML"))
	assert.True(t, strings.HasSuffix(seen[1], "\n [response_format]: TEXT"))
}

func TestHandleTurnSwitchExcludesTool(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{
		"[detailed_response]: Handing you to finance.\n" +
			"[tool_usage_flag]: true\n[tool_usage_response]: log 20 USD food\n" +
			"[invoke_another_agent_flag]: true\n[invoke_agent_name]: finance",
	}
	f.visualizer.outputs = []string{visualizerReply("Switched", "switched")}

	res := f.orch.HandleTurn(t.Context(), "talk to finance", domain.FormatText)

	assert.Equal(t, domain.BranchSwitch, res.Branch)
	assert.Empty(t, f.handler.seen(), "tool handler must not run on a switch turn")
	assert.Empty(t, f.executor.calls)
	assert.Equal(t, "Penny", res.CurrentAgentName)
	assert.Equal(t, "finance_manager", res.CurrentAgentType)
	assert.Equal(t, idFinance, f.orch.CurrentAgent())

	assert.Equal(t, []string{
		"[main_agent_response]: Handing you to finance.\n" +
			" [switch_agent_flag]: true\n" +
			" [switch_agent_name]: finance\n" +
			" [switch_status]: true\n" +
			" [response_format]: TEXT",
	}, f.visualizer.seen())

	// The next turn goes to the finance agent, not the orchestrator.
	f.finance.outputs = []string{"[detailed_response]: Your balance is fine."}
	f.orch.HandleTurn(t.Context(), "how am I doing?", domain.FormatText)
	assert.Equal(t, []string{"how am I doing?"}, f.finance.seen())
	assert.Len(t, f.main.seen(), 1)
}

func TestHandleTurnUnknownSwitchTarget(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: ok\n[invoke_another_agent_flag]: true\n[invoke_agent_name]: unknown_agent"}

	res := f.orch.HandleTurn(t.Context(), "switch", domain.FormatText)

	assert.Equal(t, domain.BranchSwitch, res.Branch)
	assert.Equal(t, "orchestrator", res.CurrentAgentType)
	require.Len(t, f.visualizer.seen(), 1)
	assert.Contains(t, f.visualizer.seen()[0], "[switch_status]: false")
}

func TestHandleTurnSwitchToCurrentIsNoop(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: ok\n[invoke_another_agent_flag]: true\n[invoke_agent_name]: 'Orchestrator'"}

	res := f.orch.HandleTurn(t.Context(), "stay", domain.FormatText)
	assert.Equal(t, "orchestrator", res.CurrentAgentType)
	assert.Contains(t, f.visualizer.seen()[0], "[switch_status]: true")
}

func TestHandleTurnFlagWithoutNameIsPlain(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: ok\n[invoke_another_agent_flag]: true\n[invoke_agent_name]: "}

	res := f.orch.HandleTurn(t.Context(), "x", domain.FormatText)
	assert.Equal(t, domain.BranchPlain, res.Branch)
}

func TestHandleTurnTool(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: Logging it.\n[tool_usage_flag]: true\n[tool_usage_response]: log 20 USD on food today"}
	f.handler.outputs = []string{`{"tool":"expense_manager","instructions":{"action":"log_expense","date":"05/04/2025","amount":"20","category":"food","currency":"USD"}}`}
	f.executor.fn = func(_ context.Context, req domain.ToolRequest) (*domain.ToolResult, error) {
		return &domain.ToolResult{
			Status:      domain.ToolStatusSuccess,
			Message:     "Expense logged successfully",
			LogsUpdated: true,
		}, nil
	}
	f.visualizer.outputs = []string{visualizerReply("Logged!", "logged")}

	res := f.orch.HandleTurn(t.Context(), "I spent 20 on food", domain.FormatText)

	assert.Equal(t, domain.BranchTool, res.Branch)
	assert.False(t, res.ToolError)
	assert.True(t, res.LogsUpdated)
	assert.False(t, res.CalendarUpdated)
	assert.Equal(t, "Logged!", res.FinalResponseToUser)

	assert.Equal(t, []string{"main_agent_response: log 20 USD on food today"}, f.handler.seen())
	require.Len(t, f.executor.calls, 1)
	assert.Equal(t, "expense_manager", f.executor.calls[0].Tool)
	assert.Equal(t, "log_expense", f.executor.calls[0].Action())

	seen := f.visualizer.seen()
	require.Len(t, seen, 1)
	lines := strings.Split(seen[0], "\n ")
	require.Len(t, lines, 6)
	assert.Equal(t, "[main_agent_response]: Logging it.", lines[0])
	assert.Equal(t, "[tool_usage]: true", lines[1])
	assert.Equal(t, "[tool_input_from_main_agent]: log 20 USD on food today", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `[tool_instruction_from_tool_agent]: {"tool":"expense_manager"`))
	assert.Equal(t, "[tool_execution_result]: {'status': 'success', 'message': 'Expense logged successfully'}", lines[4])
	assert.Equal(t, "[response_format]: TEXT", lines[5])
}

func TestHandleTurnMalformedToolDocument(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: ok\n[tool_usage_flag]: true\n[tool_usage_response]: do it"}
	f.handler.outputs = []string{"[tool]: calendar"}

	res := f.orch.HandleTurn(t.Context(), "x", domain.FormatText)

	assert.True(t, res.ToolError)
	assert.Empty(t, f.executor.calls)
	assert.Contains(t, f.visualizer.seen()[0], "[tool_execution_result]: {'status': 'error', 'error': 'MalformedToolResponse'")
	assert.Contains(t, f.visualizer.seen()[0], "[tool_instruction_from_tool_agent]: [tool]: calendar")
}

func TestHandleTurnToolHandlerReportsError(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: ok\n[tool_usage_flag]: true\n[tool_usage_response]: send mail"}
	f.handler.outputs = []string{`{"error": "missing recipient", "details": "no address given"}`}

	res := f.orch.HandleTurn(t.Context(), "x", domain.FormatText)

	assert.True(t, res.ToolError)
	assert.Empty(t, f.executor.calls)
	assert.Contains(t, f.visualizer.seen()[0],
		"[tool_execution_result]: {'status': 'error', 'error': 'missing recipient', 'details': 'no address given'}")
}

func TestHandleTurnExecutorPanicBecomesToolError(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: ok\n[tool_usage_flag]: true\n[tool_usage_response]: boom"}
	f.handler.outputs = []string{`{"tool":"calendar","instructions":{"action":"create"}}`}
	f.executor.fn = func(context.Context, domain.ToolRequest) (*domain.ToolResult, error) {
		panic("backend exploded")
	}

	var res domain.TurnResult
	require.NotPanics(t, func() {
		res = f.orch.HandleTurn(t.Context(), "x", domain.FormatText)
	})
	assert.True(t, res.ToolError)
	assert.Contains(t, f.visualizer.seen()[0], "backend exploded")
	assert.Len(t, f.executor.calls, 1, "panics are not retried")
}

func TestHandleTurnExecutorErrorBecomesToolError(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: ok\n[tool_usage_flag]: true\n[tool_usage_response]: view"}
	f.handler.outputs = []string{`{"tool":"calendar","instructions":{"action":"view"}}`}
	f.executor.fn = func(context.Context, domain.ToolRequest) (*domain.ToolResult, error) {
		return nil, domain.ErrToolNotFound
	}

	res := f.orch.HandleTurn(t.Context(), "x", domain.FormatText)
	assert.True(t, res.ToolError)
	assert.Contains(t, f.visualizer.seen()[0], "'error': 'TOOL_NOT_FOUND'")
}

func TestHandleTurnAttachesImages(t *testing.T) {
	dir := t.TempDir()
	chart := filepath.Join(dir, "chart.png")
	require.NoError(t, os.WriteFile(chart, []byte("png-bytes"), 0o644))

	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: chart\n[tool_usage_flag]: true\n[tool_usage_response]: show category chart"}
	f.handler.outputs = []string{`{"tool":"expense_manager","instructions":{"action":"view_expenses_category_wise"}}`}
	f.executor.fn = func(context.Context, domain.ToolRequest) (*domain.ToolResult, error) {
		return &domain.ToolResult{
			Status:     domain.ToolStatusSuccess,
			Data:       []map[string]any{{"category": "food", "total_amount": 20}},
			ImagePaths: []string{chart, filepath.Join(dir, "missing.png")},
		}, nil
	}

	res := f.orch.HandleTurn(t.Context(), "x", domain.FormatHTML)

	require.Len(t, res.DisplayImages, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), res.DisplayImages[0])
	merged := f.visualizer.seen()[0]
	assert.NotContains(t, merged, "image_path")
	assert.Contains(t, merged, `'data': [{"category":"food","total_amount":20}]`)
}

func TestHandleTurnDegradedAgentFlowsThrough(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.fail = errors.New("provider down")
	f.visualizer.outputs = []string{visualizerReply("Sorry, something went wrong.", "error")}

	res := f.orch.HandleTurn(t.Context(), "hello", domain.FormatText)

	assert.True(t, res.Degraded)
	assert.Equal(t, domain.BranchPlain, res.Branch)
	assert.Equal(t, []string{"[main_agent_response]: Error: provider down\n [response_format]: TEXT"}, f.visualizer.seen())
	assert.Equal(t, "Sorry, something went wrong.", res.FinalResponseToUser)
}

func TestHandleTurnDegradedVisualizerFallsBack(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.main.outputs = []string{"[detailed_response]: hi"}
	f.visualizer.fail = errors.New("visualizer down")

	res := f.orch.HandleTurn(t.Context(), "hello", domain.FormatText)
	assert.True(t, res.Degraded)
	assert.Equal(t, "I apologize, but I encountered an error processing your request.", res.FinalResponseToUser)
	assert.Equal(t, res.FinalResponseToUser, res.SummarizedResponse)
}

func TestOrchestratorReset(t *testing.T) {
	f := newOrchestratorFixture(t)
	require.NoError(t, f.orch.Reset(domain.AgentStudyManager))
	assert.Equal(t, idStudy, f.orch.CurrentAgent())

	err := f.orch.Reset(domain.AgentVisualizer)
	assert.True(t, errors.Is(err, domain.ErrUnknownAgent))
}

func TestNewOrchestratorValidation(t *testing.T) {
	reg := testRegistry(t)
	resolver := multiagent.NewResolver(reg, nil, testLogger())

	_, err := NewOrchestrator(OrchestratorDeps{
		MainAgents: []Generator{&scriptedAgent{id: idFinance}},
		Visualizer: &scriptedAgent{id: idVisualizer},
		Resolver:   resolver,
	})
	assert.True(t, errors.Is(err, domain.ErrUnknownAgent), "default initial agent is the orchestrator")

	_, err = NewOrchestrator(OrchestratorDeps{
		MainAgents: []Generator{&scriptedAgent{id: idOrchestrator}, &scriptedAgent{id: idVisualizer}},
		Visualizer: &scriptedAgent{id: idVisualizer},
		Resolver:   resolver,
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = NewOrchestrator(OrchestratorDeps{
		MainAgents: []Generator{&scriptedAgent{id: idOrchestrator}},
		Resolver:   resolver,
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestHandleTurnPublishesEvents(t *testing.T) {
	bus := eventbus.New(testLogger())
	var mu sync.Mutex
	var types []domain.EventType
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})

	f := newOrchestratorFixture(t)
	f.orch.deps.Bus = bus
	f.main.outputs = []string{"[detailed_response]: ok\n[invoke_another_agent_flag]: true\n[invoke_agent_name]: study"}

	res := f.orch.HandleTurn(t.Context(), "switch to study", domain.FormatText)
	bus.Close()

	assert.Equal(t, "study_manager", res.CurrentAgentType)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.EventType{domain.EventAgentSwitched, domain.EventTurnCompleted}, types)
}

type historyAgent struct {
	*scriptedAgent
	store domain.HistoryStore
}

func (h historyAgent) History() domain.HistoryStore { return h.store }

func TestOrchestratorAgentsSnapshot(t *testing.T) {
	store := history.NewMemoryStore()
	store.Append(domain.Message{Role: domain.RoleUser, Content: "log 20 for lunch"})
	store.Append(domain.Message{Role: domain.RoleAssistant, Content: "logged"})

	orch, err := NewOrchestrator(OrchestratorDeps{
		MainAgents: []Generator{
			&scriptedAgent{id: idStudy},
			historyAgent{scriptedAgent: &scriptedAgent{id: idFinance}, store: store},
			&scriptedAgent{id: idOrchestrator},
		},
		Visualizer: &scriptedAgent{id: idVisualizer},
		Resolver:   multiagent.NewResolver(testRegistry(t), nil, testLogger()),
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, orch.Reset(domain.AgentFinanceManager))

	agents := orch.Agents()
	require.Len(t, agents, 3)
	assert.Equal(t, domain.AgentOrchestrator, agents[0].Type, "initial agent first")
	assert.Equal(t, domain.AgentFinanceManager, agents[1].Type)
	assert.Equal(t, domain.AgentStudyManager, agents[2].Type)

	finance := agents[1]
	assert.Equal(t, "Penny", finance.Name)
	assert.True(t, finance.Current)
	assert.False(t, agents[0].Current)
	assert.Equal(t, 2, finance.HistoryEntries)
	assert.Zero(t, agents[2].HistoryEntries, "agents without a log report zero")
	assert.Contains(t, finance.Aliases, "penny")
	assert.Contains(t, finance.Aliases, "finance agent")
	assert.IsNonDecreasing(t, finance.Aliases)
}
