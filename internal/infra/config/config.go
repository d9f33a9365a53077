package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "YINSEN_"

// Config is the top-level application configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Agents    AgentsConfig    `yaml:"agents"`
	Tools     ToolsConfig     `yaml:"tools"`
	Inbox     InboxConfig     `yaml:"inbox"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Audit     AuditConfig     `yaml:"audit"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry           RetryConfig          `yaml:"retry"`
}

// FailoverConfig lists providers tried, in order, when the default fails.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RetryConfig bounds model and tool calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // openai, anthropic, bedrock
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// GenerationConfig are sampling parameters. Zero fields inherit the
// agents.defaults values.
type GenerationConfig struct {
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	TopP             float64 `yaml:"top_p"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
}

// Merge returns g with zero fields taken from base.
func (g GenerationConfig) Merge(base GenerationConfig) GenerationConfig {
	if g.Model == "" {
		g.Model = base.Model
	}
	if g.Temperature == 0 {
		g.Temperature = base.Temperature
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = base.MaxTokens
	}
	if g.TopP == 0 {
		g.TopP = base.TopP
	}
	if g.FrequencyPenalty == 0 {
		g.FrequencyPenalty = base.FrequencyPenalty
	}
	if g.PresencePenalty == 0 {
		g.PresencePenalty = base.PresencePenalty
	}
	return g
}

// AgentsConfig describes the fixed agent set.
type AgentsConfig struct {
	// GeneralMainInstructions and GeneralHelperInstructions are files whose
	// text prefixes the persona of every main or helper agent.
	GeneralMainInstructions   string            `yaml:"general_main_instructions"`
	GeneralHelperInstructions string            `yaml:"general_helper_instructions"`
	Defaults                  GenerationConfig  `yaml:"defaults"`
	Initial                   string            `yaml:"initial"`
	HistoryWindow             int               `yaml:"history_window"`
	Definitions               []AgentDefinition `yaml:"definitions"`
}

// AgentDefinition configures one agent.
type AgentDefinition struct {
	Type         string           `yaml:"type"`
	Name         string           `yaml:"name"`
	Instructions string           `yaml:"instructions"` // file path
	History      string           `yaml:"history"`      // gzip JSON file, empty = in memory
	Provider     string           `yaml:"provider,omitempty"`
	Params       GenerationConfig `yaml:"params"`
	Aliases      []string         `yaml:"aliases,omitempty"`
}

// Definition returns the definition for an agent type.
func (a AgentsConfig) Definition(agentType string) (AgentDefinition, bool) {
	for _, d := range a.Definitions {
		if d.Type == agentType {
			return d, true
		}
	}
	return AgentDefinition{}, false
}

// ToolsConfig holds tool data locations and limits.
type ToolsConfig struct {
	DataDir         string        `yaml:"data_dir"`
	Ledger          string        `yaml:"ledger"`
	ChartDir        string        `yaml:"chart_dir"`
	NotificationLog string        `yaml:"notification_log"`
	CalendarLog     string        `yaml:"calendar_log"`
	Outbox          string        `yaml:"outbox"`
	Timezone        string        `yaml:"timezone"`
	Timeout         time.Duration `yaml:"timeout"`
	Email           EmailConfig   `yaml:"email"`
}

// EmailConfig holds email tool settings.
type EmailConfig struct {
	From            string   `yaml:"from"`
	MaxSendsPerHour int      `yaml:"max_sends_per_hour"`
	AllowedDomains  []string `yaml:"allowed_domains,omitempty"`
}

// InboxConfig holds input queue settings.
type InboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	QueueSize    int           `yaml:"queue_size"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Enabled        bool            `yaml:"enabled"`
	Addr           string          `yaml:"addr"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SchedulerConfig holds cron/scheduler settings.
type SchedulerConfig struct {
	Enabled          bool                  `yaml:"enabled"`
	NotificationKeep int                   `yaml:"notification_keep"`
	Tasks            []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Action   string `yaml:"action"`
}

// AuditConfig holds turn journal settings.
type AuditConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // noop, stdout, file
	Endpoint string `yaml:"endpoint"` // file path for the file exporter
}

const defaultDataDir = "./data"

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{Name: "openai", Type: "openai", Model: "gpt-4o-mini"},
			},
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    10 * time.Second,
				CallTimeout: 60 * time.Second,
			},
		},
		Agents: AgentsConfig{
			GeneralMainInstructions:   "./prompts/general_main.txt",
			GeneralHelperInstructions: "./prompts/general_helper.txt",
			Defaults: GenerationConfig{
				Temperature: 0.7,
				MaxTokens:   1024,
				TopP:        1,
			},
			Initial:       "orchestrator",
			HistoryWindow: 10,
			Definitions: []AgentDefinition{
				{Type: "orchestrator", Name: "Mia", Instructions: "./prompts/orchestrator.txt", History: "./data/history/orchestrator.json.gz"},
				{Type: "finance_manager", Name: "Flock", Instructions: "./prompts/finance_manager.txt", History: "./data/history/finance_manager.json.gz"},
				{Type: "study_manager", Name: "Sara", Instructions: "./prompts/study_manager.txt", History: "./data/history/study_manager.json.gz"},
				{Type: "health_manager", Name: "Doctor", Instructions: "./prompts/health_manager.txt", History: "./data/history/health_manager.json.gz"},
				{Type: "visualizer", Name: "Iris", Instructions: "./prompts/visualizer.txt", Params: GenerationConfig{Temperature: 0.3}},
				{Type: "tool_handler", Name: "Gearbox", Instructions: "./prompts/tool_handler.txt", Params: GenerationConfig{Temperature: 0.1}},
			},
		},
		Tools: ToolsConfig{
			DataDir:         defaultDataDir,
			Ledger:          "./data/finance/expense_log.csv",
			ChartDir:        "./data/finance",
			NotificationLog: "./data/notification_logs.json",
			CalendarLog:     "./data/calender_logs.json",
			Outbox:          "./data/outbox.jsonl",
			Timeout:         30 * time.Second,
			Email: EmailConfig{
				MaxSendsPerHour: 20,
			},
		},
		Inbox: InboxConfig{
			PollInterval: 100 * time.Millisecond,
			QueueSize:    32,
		},
		Gateway: GatewayConfig{
			Enabled:        false,
			Addr:           "127.0.0.1:5000",
			AllowedOrigins: []string{"http://localhost:8080"},
			RequestTimeout: 3 * time.Minute,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 2,
				Burst:             5,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			NotificationKeep: 50,
			Tasks: []ScheduledTaskConfig{
				{Name: "calendar-reset", Schedule: "0 0 * * *", Action: "calendar_reset"},
				{Name: "notification-trim", Schedule: "@hourly", Action: "notification_trim"},
			},
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    "./data/turns.db",
			MaxAge:  90 * 24 * time.Hour,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}
		// The main file wins over its includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(EnvPrefix + "CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps YINSEN_* env vars to config fields. Provider API
// keys also fall back to the conventional vendor variables (OPENAI_API_KEY,
// ANTHROPIC_API_KEY) so a plain .env file works.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv(EnvPrefix + "LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv(EnvPrefix + "TRACER_ENABLED"); v != "" {
		cfg.Tracer.Enabled = parseBool(v, cfg.Tracer.Enabled)
	}
	if v := os.Getenv(EnvPrefix + "TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv(EnvPrefix + "GATEWAY_ENABLED"); v != "" {
		cfg.Gateway.Enabled = parseBool(v, cfg.Gateway.Enabled)
	}
	if v := os.Getenv(EnvPrefix + "GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "GATEWAY_ALLOWED_ORIGINS"); v != "" {
		cfg.Gateway.AllowedOrigins = splitAndTrim(v, ",")
	}
	if v := os.Getenv(EnvPrefix + "AGENTS_INITIAL"); v != "" {
		cfg.Agents.Initial = v
	}
	if v := os.Getenv(EnvPrefix + "TOOLS_TIMEZONE"); v != "" {
		cfg.Tools.Timezone = v
	}
	if v := os.Getenv(EnvPrefix + "TOOLS_EMAIL_FROM"); v != "" {
		cfg.Tools.Email.From = v
	}
	// The original service read the log locations from these two variables.
	if v := os.Getenv("LOGS_FILE_PATH"); v != "" {
		cfg.Tools.NotificationLog = v
	}
	if v := os.Getenv("CALENDAR_FILE_PATH"); v != "" {
		cfg.Tools.CalendarLog = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = parseBool(v, cfg.Audit.Enabled)
	}
	if v := os.Getenv(EnvPrefix + "AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}

	vendorKeys := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		envKey := fmt.Sprintf("%sLLM_PROVIDER_%s_API_KEY", EnvPrefix, envName(p.Name))
		if v := os.Getenv(envKey); v != "" {
			p.APIKey = v
			continue
		}
		if p.APIKey == "" {
			if v := os.Getenv(vendorKeys[p.Type]); vendorKeys[p.Type] != "" && v != "" {
				p.APIKey = v
			}
		}
		if v := os.Getenv(fmt.Sprintf("%sLLM_PROVIDER_%s_MODEL", EnvPrefix, envName(p.Name))); v != "" {
			p.Model = v
		}
	}
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return b
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const encPrefix = "enc:"

// decryptSecrets replaces "enc:..." provider API keys with their plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if !strings.HasPrefix(key, encPrefix) {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(key, encPrefix), passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
		}
		cfg.LLM.Providers[i].APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result is hex(salt) + ":" + hex(nonce+ciphertext); prefix it with
// "enc:" in the config file.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
