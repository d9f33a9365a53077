package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIncludesSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "llm.yaml", `
llm:
  providers:
    - name: "openai"
      type: "openai"
      api_key: "sk-from-include"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "llm.yaml"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.LLM.Providers) != 1 || cfg.LLM.Providers[0].APIKey != "sk-from-include" {
		t.Errorf("provider not loaded from include: %+v", cfg.LLM.Providers)
	}
}

func TestIncludesGlobAndMainWins(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "conf.d")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfigFile(t, sub, "inbox.yaml", "inbox:\n  queue_size: 7\n")
	writeConfigFile(t, sub, "logger.yaml", "logger:\n  level: debug\n")
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "conf.d/*.yaml"
logger:
  level: warn
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Inbox.QueueSize != 7 {
		t.Errorf("QueueSize = %d, want 7", cfg.Inbox.QueueSize)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q, main file should win", cfg.Logger.Level)
	}
}

func TestIncludesNested(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "b.yaml", "tools:\n  outbox: /tmp/nested.jsonl\n")
	writeConfigFile(t, dir, "a.yaml", "includes:\n  - b.yaml\n")
	path := writeConfigFile(t, dir, "config.yaml", "includes:\n  - a.yaml\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.Outbox != "/tmp/nested.jsonl" {
		t.Errorf("Outbox = %q", cfg.Tools.Outbox)
	}
}

func TestIncludesCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", "includes:\n  - config.yaml\n")
	path := writeConfigFile(t, dir, "config.yaml", "includes:\n  - a.yaml\n")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "included twice") {
		t.Errorf("err = %v, want cycle error", err)
	}
}

func TestIncludesTraversal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "includes:\n  - ../outside.yaml\n")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "is outside") {
		t.Errorf("err = %v, want traversal error", err)
	}
}

func TestIncludesMissingLiteral(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "includes:\n  - nope.yaml\n")
	if _, err := Load(path); err == nil {
		t.Error("missing literal include should fail")
	}
}

func TestIncludesEmptyGlob(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "includes:\n  - \"extra/*.yaml\"\n")
	if _, err := Load(path); err != nil {
		t.Errorf("empty glob should be ignored: %v", err)
	}
}
