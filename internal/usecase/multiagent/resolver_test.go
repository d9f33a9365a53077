package multiagent

import (
	"slices"
	"testing"

	"yinsen/internal/domain"
)

func TestResolveFinanceAliases(t *testing.T) {
	res := NewResolver(testRegistry(t), nil, testLogger())

	for _, target := range []string{
		"Finance Manager",
		"finance",
		"'Finance'",
		`"finance agent"`,
		"  FINANCE_MANAGER ",
		"Penny",
	} {
		got, ok := res.Resolve(target, domain.AgentOrchestrator)
		if !ok {
			t.Errorf("Resolve(%q) failed", target)
			continue
		}
		if got.Target.Type != domain.AgentFinanceManager {
			t.Errorf("Resolve(%q) = %s, want finance_manager", target, got.Target.Type)
		}
		if !got.Changed {
			t.Errorf("Resolve(%q) Changed = false", target)
		}
	}
}

func TestResolveOtherMainAgents(t *testing.T) {
	res := NewResolver(testRegistry(t), nil, testLogger())

	tests := []struct {
		target string
		want   domain.AgentType
	}{
		{"study", domain.AgentStudyManager},
		{"Study Agent", domain.AgentStudyManager},
		{"sage", domain.AgentStudyManager},
		{"health manager", domain.AgentHealthManager},
		{"Vita", domain.AgentHealthManager},
		{"orchestrator", domain.AgentOrchestrator},
		{"Yinsen", domain.AgentOrchestrator},
	}
	for _, tt := range tests {
		got, ok := res.Resolve(tt.target, domain.AgentFinanceManager)
		if !ok || got.Target.Type != tt.want {
			t.Errorf("Resolve(%q) = %v/%v, want %s", tt.target, got.Target.Type, ok, tt.want)
		}
	}
}

func TestResolveOrchestratorHasNoExtraAliases(t *testing.T) {
	res := NewResolver(testRegistry(t), nil, testLogger())
	for _, target := range []string{"orchestrator agent", "main", "orchestrator manager"} {
		if _, ok := res.Resolve(target, domain.AgentFinanceManager); ok {
			t.Errorf("Resolve(%q) unexpectedly succeeded", target)
		}
	}
}

func TestResolveHelpersAreNotTargets(t *testing.T) {
	res := NewResolver(testRegistry(t), nil, testLogger())
	for _, target := range []string{"visualizer", "Iris", "tool_handler"} {
		if _, ok := res.Resolve(target, domain.AgentOrchestrator); ok {
			t.Errorf("Resolve(%q) unexpectedly succeeded", target)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	res := NewResolver(testRegistry(t), nil, testLogger())
	got, ok := res.Resolve("unknown_agent", domain.AgentOrchestrator)
	if ok {
		t.Fatalf("Resolve(unknown_agent) succeeded: %+v", got)
	}
	if got.Target.Type != "" {
		t.Errorf("failed resolution carried a target: %+v", got)
	}
}

func TestResolveCurrentIsIdempotent(t *testing.T) {
	res := NewResolver(testRegistry(t), nil, testLogger())
	got, ok := res.Resolve("finance", domain.AgentFinanceManager)
	if !ok {
		t.Fatal("Resolve(finance) failed")
	}
	if got.Changed {
		t.Error("Changed = true for the current agent")
	}
}

func TestResolveConfiguredAliases(t *testing.T) {
	extra := map[domain.AgentType][]string{
		domain.AgentHealthManager: {"Doctor", "fitness coach"},
	}
	res := NewResolver(testRegistry(t), extra, testLogger())

	got, ok := res.Resolve("'doctor'", domain.AgentOrchestrator)
	if !ok || got.Target.Type != domain.AgentHealthManager {
		t.Errorf("Resolve(doctor) = %v/%v", got.Target.Type, ok)
	}
	if _, ok := res.Resolve("Fitness Coach", domain.AgentOrchestrator); !ok {
		t.Error("Resolve(Fitness Coach) failed")
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := map[string]string{
		`"Finance"`:      "finance",
		"'Finance'":      "finance",
		`"'Finance'"`:    "'finance'",
		"'mismatched\"":  "'mismatched\"",
		"  spaced out  ": "spaced out",
		"'":              "'",
	}
	for in, want := range tests {
		if got := normalizeToken(in); got != want {
			t.Errorf("normalizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolverAliasesSorted(t *testing.T) {
	res := NewResolver(testRegistry(t), nil, testLogger())
	want := []string{"finance", "finance agent", "finance manager", "finance_manager", "penny"}
	if got := res.Aliases(domain.AgentFinanceManager); !slices.Equal(got, want) {
		t.Errorf("Aliases = %q, want %q", got, want)
	}
	if got := res.Aliases(domain.AgentVisualizer); len(got) != 0 {
		t.Errorf("helper agents have no aliases, got %q", got)
	}
}
