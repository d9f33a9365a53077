package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q, want %q", cfg.LLM.DefaultProvider, "openai")
	}
	if cfg.Agents.Initial != "orchestrator" {
		t.Errorf("Initial = %q, want orchestrator", cfg.Agents.Initial)
	}
	if cfg.Tools.CalendarLog != "./data/calender_logs.json" {
		t.Errorf("CalendarLog = %q", cfg.Tools.CalendarLog)
	}
	d, ok := cfg.Agents.Definition("finance_manager")
	if !ok || d.Name != "Flock" {
		t.Errorf("finance_manager definition = %+v, %v", d, ok)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agents.HistoryWindow != 10 {
		t.Errorf("expected defaults, got HistoryWindow=%d", cfg.Agents.HistoryWindow)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  default_provider: "claude"
  providers:
    - name: "claude"
      type: "anthropic"
      api_key: "test-key"
      model: "claude-3-5-haiku-latest"
agents:
  history_window: 4
  defaults:
    temperature: 0.2
inbox:
  poll_interval: 250ms
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.DefaultProvider != "claude" {
		t.Errorf("DefaultProvider = %q, want claude", cfg.LLM.DefaultProvider)
	}
	if len(cfg.LLM.Providers) != 1 || cfg.LLM.Providers[0].APIKey != "test-key" {
		t.Errorf("Providers mismatch: %+v", cfg.LLM.Providers)
	}
	if cfg.Agents.HistoryWindow != 4 {
		t.Errorf("HistoryWindow = %d, want 4", cfg.Agents.HistoryWindow)
	}
	if cfg.Agents.Defaults.Temperature != 0.2 || cfg.Agents.Defaults.MaxTokens != 1024 {
		t.Errorf("Defaults = %+v, want temperature overridden and max_tokens kept", cfg.Agents.Defaults)
	}
	if cfg.Inbox.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Inbox.PollInterval)
	}
	if len(cfg.Agents.Definitions) != 6 {
		t.Errorf("definitions should keep defaults, got %d", len(cfg.Agents.Definitions))
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestLoadRejectsWorldWritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Errorf("err = %v, want permissions error", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("YINSEN_LOGGER_LEVEL", "error")
	t.Setenv("YINSEN_GATEWAY_ENABLED", "true")
	t.Setenv("YINSEN_GATEWAY_ALLOWED_ORIGINS", "http://a.local, http://b.local ,")
	t.Setenv("LOGS_FILE_PATH", "/srv/notes.json")
	t.Setenv("CALENDAR_FILE_PATH", "/srv/cal.json")
	t.Setenv("YINSEN_TRACER_ENABLED", "not-a-bool")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Logger.Level != "error" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	if !cfg.Gateway.Enabled {
		t.Error("gateway should be enabled")
	}
	if got := strings.Join(cfg.Gateway.AllowedOrigins, "|"); got != "http://a.local|http://b.local" {
		t.Errorf("AllowedOrigins = %q", got)
	}
	if cfg.Tools.NotificationLog != "/srv/notes.json" || cfg.Tools.CalendarLog != "/srv/cal.json" {
		t.Errorf("log paths = %q, %q", cfg.Tools.NotificationLog, cfg.Tools.CalendarLog)
	}
	if cfg.Tracer.Enabled {
		t.Error("unparseable bool should keep the previous value")
	}
}

func TestProviderKeyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-vendor")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.LLM.Providers[0].APIKey != "sk-vendor" {
		t.Errorf("APIKey = %q, want vendor fallback", cfg.LLM.Providers[0].APIKey)
	}

	t.Setenv("YINSEN_LLM_PROVIDER_OPENAI_API_KEY", "sk-specific")
	cfg = Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.LLM.Providers[0].APIKey != "sk-specific" {
		t.Errorf("APIKey = %q, want provider-specific override", cfg.LLM.Providers[0].APIKey)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("sk-secret", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecryptValue(enc, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if got != "sk-secret" {
		t.Errorf("got %q", got)
	}
	if _, err := DecryptValue(enc, "wrong"); err == nil {
		t.Error("wrong passphrase should fail")
	}
	if _, err := DecryptValue("no-separator", "hunter2"); err == nil {
		t.Error("malformed input should fail")
	}
}

func TestLoadDecryptsSecrets(t *testing.T) {
	enc, err := EncryptValue("sk-real", "pass")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  providers:\n    - name: openai\n      type: openai\n      api_key: \"enc:" + enc + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("YINSEN_CONFIG_KEY", "pass")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Providers[0].APIKey != "sk-real" {
		t.Errorf("APIKey = %q", cfg.LLM.Providers[0].APIKey)
	}
}

func TestGenerationConfigMerge(t *testing.T) {
	base := GenerationConfig{Model: "m", Temperature: 0.7, MaxTokens: 100, TopP: 1}
	got := GenerationConfig{Temperature: 0.1}.Merge(base)
	want := GenerationConfig{Model: "m", Temperature: 0.1, MaxTokens: 100, TopP: 1}
	if got != want {
		t.Errorf("Merge = %+v, want %+v", got, want)
	}
}
