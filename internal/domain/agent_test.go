package domain

import (
	"encoding/json"
	"testing"
)

func TestAgentIdentityIsMain(t *testing.T) {
	tests := []struct {
		identity AgentIdentity
		want     bool
	}{
		{AgentIdentity{Name: "Mia", Type: AgentOrchestrator, Category: CategoryMain}, true},
		{AgentIdentity{Name: "Flock", Type: AgentFinanceManager, Category: CategoryMain}, true},
		{AgentIdentity{Name: "Iris", Type: AgentVisualizer, Category: CategoryHelper}, false},
		{AgentIdentity{Name: "Gearbox", Type: AgentToolHandler, Category: CategoryHelper}, false},
		{AgentIdentity{Name: "nobody"}, false},
	}
	for _, tt := range tests {
		if got := tt.identity.IsMain(); got != tt.want {
			t.Errorf("%s.IsMain() = %v, want %v", tt.identity.Name, got, tt.want)
		}
	}
}

func TestAgentIdentityJSON(t *testing.T) {
	identity := AgentIdentity{Name: "Sara", Type: AgentStudyManager, Category: CategoryMain}

	data, err := json.Marshal(identity)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"name":"Sara","type":"study_manager","category":"main"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestGenerationParamsOmitsEmptyModel(t *testing.T) {
	data, err := json.Marshal(GenerationParams{Temperature: 0.7, MaxTokens: 1024, TopP: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["model"]; ok {
		t.Errorf("model should be omitted when empty: %s", data)
	}
	if decoded["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v, want 1024", decoded["max_tokens"])
	}
}
