package multiagent

import (
	"errors"
	"log/slog"
	"testing"

	"yinsen/internal/domain"
)

func testLogger() *slog.Logger { return slog.Default() }

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(testLogger())
	for _, id := range []domain.AgentIdentity{
		{Name: "Yinsen", Type: domain.AgentOrchestrator, Category: domain.CategoryMain},
		{Name: "Penny", Type: domain.AgentFinanceManager, Category: domain.CategoryMain},
		{Name: "Sage", Type: domain.AgentStudyManager, Category: domain.CategoryMain},
		{Name: "Vita", Type: domain.AgentHealthManager, Category: domain.CategoryMain},
		{Name: "Iris", Type: domain.AgentVisualizer, Category: domain.CategoryHelper},
		{Name: "Wrench", Type: domain.AgentToolHandler, Category: domain.CategoryHelper},
	} {
		if err := r.Register(id); err != nil {
			t.Fatalf("Register(%s): %v", id.Type, err)
		}
	}
	return r
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := testRegistry(t)
	got, err := r.Get(domain.AgentFinanceManager)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Penny" {
		t.Errorf("Name = %q, want %q", got.Name, "Penny")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := testRegistry(t)
	err := r.Register(domain.AgentIdentity{Name: "Other", Type: domain.AgentOrchestrator, Category: domain.CategoryMain})
	if err != domain.ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestRegistryRejectsIncompleteIdentity(t *testing.T) {
	r := NewRegistry(testLogger())
	err := r.Register(domain.AgentIdentity{Type: domain.AgentOrchestrator})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Get("nonexistent")
	if err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryListKeepsOrder(t *testing.T) {
	r := testRegistry(t)
	list := r.List()
	if len(list) != 6 {
		t.Fatalf("len = %d, want 6", len(list))
	}
	if list[0].Type != domain.AgentOrchestrator || list[5].Type != domain.AgentToolHandler {
		t.Errorf("unexpected order: %v", list)
	}

	main := r.Main()
	if len(main) != 4 {
		t.Fatalf("main agents = %d, want 4", len(main))
	}
	for _, id := range main {
		if !id.IsMain() {
			t.Errorf("%s is not a main agent", id.Type)
		}
	}
}

func TestRegistryFormatTypeToName(t *testing.T) {
	r := testRegistry(t)
	want := "{'orchestrator': 'Yinsen', 'finance_manager': 'Penny', 'study_manager': 'Sage', " +
		"'health_manager': 'Vita', 'visualizer': 'Iris', 'tool_handler': 'Wrench'}"
	if got := r.FormatTypeToName(); got != want {
		t.Errorf("FormatTypeToName() =\n%s\nwant\n%s", got, want)
	}
	if got := r.TypeToName()[domain.AgentStudyManager]; got != "Sage" {
		t.Errorf("TypeToName[study_manager] = %q", got)
	}
}
