package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateAgents(cfg, ve)
	validateTools(cfg, ve)
	validateInbox(cfg, ve)
	validateGateway(cfg, ve)
	validateScheduler(cfg, ve)
	validateAudit(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must list at least one provider")
	}
	names := make(map[string]bool, len(cfg.LLM.Providers))
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
		} else if names[p.Name] {
			ve.Add("llm.providers[%d].name %q is duplicated", i, p.Name)
		}
		names[p.Name] = true
		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is not one of openai, anthropic, bedrock", i, p.Type)
		}
		if p.Type == "bedrock" && p.Region == "" {
			ve.Add("llm.providers[%d].region is required for bedrock", i)
		}
		if p.ConnTimeout < 0 || p.RespTimeout < 0 {
			ve.Add("llm.providers[%d] timeouts must be >= 0", i)
		}
	}
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	} else if len(cfg.LLM.Providers) > 0 && !names[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q is not a configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !names[fb] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", fb)
			}
		}
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
	r := cfg.LLM.Retry
	if r.MaxAttempts < 1 {
		ve.Add("llm.retry.max_attempts must be >= 1")
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 || r.CallTimeout < 0 {
		ve.Add("llm.retry delays must be >= 0")
	}
	if r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay {
		ve.Add("llm.retry.base_delay must not exceed max_delay")
	}
}

var mainAgentTypes = []string{"orchestrator", "finance_manager", "study_manager", "health_manager"}

var validAgentTypes = map[string]bool{
	"orchestrator":    true,
	"finance_manager": true,
	"study_manager":   true,
	"health_manager":  true,
	"visualizer":      true,
	"tool_handler":    true,
}

func validateAgents(cfg *Config, ve *ValidationError) {
	a := cfg.Agents
	if a.HistoryWindow < 1 {
		ve.Add("agents.history_window must be >= 1")
	}
	if !validAgentTypes[a.Initial] || a.Initial == "visualizer" || a.Initial == "tool_handler" {
		ve.Add("agents.initial %q must be a main agent type", a.Initial)
	}
	validateParams("agents.defaults", a.Defaults, ve)

	seenTypes := make(map[string]bool, len(a.Definitions))
	seenNames := make(map[string]string, len(a.Definitions))
	for i, d := range a.Definitions {
		field := fmt.Sprintf("agents.definitions[%d]", i)
		if !validAgentTypes[d.Type] {
			ve.Add("%s.type %q is unknown", field, d.Type)
			continue
		}
		if seenTypes[d.Type] {
			ve.Add("%s.type %q is defined twice", field, d.Type)
		}
		seenTypes[d.Type] = true
		if d.Name == "" {
			ve.Add("%s.name must not be empty", field)
		} else if other, dup := seenNames[strings.ToLower(d.Name)]; dup {
			ve.Add("%s.name %q is already used by %s", field, d.Name, other)
		} else {
			seenNames[strings.ToLower(d.Name)] = d.Type
		}
		if d.Instructions == "" {
			ve.Add("%s.instructions must name a file", field)
		}
		if d.Provider != "" && !cfg.hasProvider(d.Provider) {
			ve.Add("%s.provider %q is not a configured provider", field, d.Provider)
		}
		validateParams(field+".params", d.Params, ve)
	}
	for _, t := range append(mainAgentTypes, "visualizer", "tool_handler") {
		if !seenTypes[t] {
			ve.Add("agents.definitions is missing %q", t)
		}
	}
}

func validateParams(field string, p GenerationConfig, ve *ValidationError) {
	if p.Temperature < 0 || p.Temperature > 2 {
		ve.Add("%s.temperature must be within [0, 2]", field)
	}
	if p.TopP < 0 || p.TopP > 1 {
		ve.Add("%s.top_p must be within [0, 1]", field)
	}
	if p.MaxTokens < 0 {
		ve.Add("%s.max_tokens must be >= 0", field)
	}
	if p.FrequencyPenalty < -2 || p.FrequencyPenalty > 2 {
		ve.Add("%s.frequency_penalty must be within [-2, 2]", field)
	}
	if p.PresencePenalty < -2 || p.PresencePenalty > 2 {
		ve.Add("%s.presence_penalty must be within [-2, 2]", field)
	}
}

func (c *Config) hasProvider(name string) bool {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return true
		}
	}
	return false
}

func validateTools(cfg *Config, ve *ValidationError) {
	t := cfg.Tools
	if t.Ledger == "" {
		ve.Add("tools.ledger must not be empty")
	}
	if t.NotificationLog == "" {
		ve.Add("tools.notification_log must not be empty")
	}
	if t.CalendarLog == "" {
		ve.Add("tools.calendar_log must not be empty")
	}
	if t.Timeout <= 0 {
		ve.Add("tools.timeout must be > 0")
	}
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			ve.Add("tools.timezone %q: %v", t.Timezone, err)
		}
	}
	if t.Email.MaxSendsPerHour < 0 {
		ve.Add("tools.email.max_sends_per_hour must be >= 0")
	}
}

func validateInbox(cfg *Config, ve *ValidationError) {
	if cfg.Inbox.PollInterval <= 0 {
		ve.Add("inbox.poll_interval must be > 0")
	}
	if cfg.Inbox.QueueSize < 1 {
		ve.Add("inbox.queue_size must be >= 1")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if !g.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(g.Addr); err != nil {
		ve.Add("gateway.addr %q: %v", g.Addr, err)
	}
	if g.RequestTimeout <= 0 {
		ve.Add("gateway.request_timeout must be > 0")
	}
	if g.RateLimit.Enabled {
		if g.RateLimit.RequestsPerSecond <= 0 {
			ve.Add("gateway.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if g.RateLimit.Burst < 1 {
			ve.Add("gateway.rate_limit.burst must be >= 1 when enabled")
		}
	}
}

var validActions = map[string]bool{
	"calendar_reset":    true,
	"notification_trim": true,
	"audit_retention":   true,
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func validateScheduler(cfg *Config, ve *ValidationError) {
	s := cfg.Scheduler
	if !s.Enabled {
		return
	}
	if s.NotificationKeep < 0 {
		ve.Add("scheduler.notification_keep must be >= 0")
	}
	names := make(map[string]bool, len(s.Tasks))
	for i, task := range s.Tasks {
		field := fmt.Sprintf("scheduler.tasks[%d]", i)
		if task.Name == "" {
			ve.Add("%s.name must not be empty", field)
		} else if names[task.Name] {
			ve.Add("%s.name %q is duplicated", field, task.Name)
		}
		names[task.Name] = true
		if !validActions[task.Action] {
			ve.Add("%s.action %q is unknown", field, task.Action)
		}
		if _, err := time.ParseDuration(task.Schedule); err == nil {
			continue
		}
		if _, err := cronParser.Parse(task.Schedule); err != nil {
			ve.Add("%s.schedule %q is neither a duration nor a cron expression", field, task.Schedule)
		}
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path must not be empty when audit is enabled")
	}
	if cfg.Audit.MaxAge < 0 {
		ve.Add("audit.max_age must be >= 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is not one of text, json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "noop", "stdout":
	case "file":
		if cfg.Tracer.Endpoint == "" {
			ve.Add("tracer.endpoint must name a file for the file exporter")
		}
	default:
		ve.Add("tracer.exporter %q is not one of noop, stdout, file", cfg.Tracer.Exporter)
	}
}
