package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"yinsen/internal/adapter/audit"
	"yinsen/internal/adapter/gateway"
	"yinsen/internal/domain"
	"yinsen/internal/infra/config"
	"yinsen/internal/infra/middleware"
	"yinsen/internal/usecase"
	"yinsen/internal/usecase/eventbus"
	"yinsen/internal/usecase/inbox"
	"yinsen/internal/usecase/scheduling"
)

// App is the assembled runtime: agents, tools, orchestrator and the inbox
// that feeds it, plus the optional scheduler and turn journal.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Bus          *eventbus.Bus
	Agents       *AgentComponents
	Tools        *ToolComponents
	Orchestrator *usecase.Orchestrator
	Inbox        *inbox.Inbox
	Scheduler    *scheduling.Scheduler // nil when disabled
	Audit        *audit.Store          // nil when disabled
}

// buildApp wires the runtime. initial overrides agents.initial when set.
func buildApp(cfg *config.Config, initial string, providers providerFunc, log *slog.Logger) (_ *App, err error) {
	app := &App{Config: cfg, Logger: log, Bus: eventbus.New(log)}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	// 1. Agents
	app.Agents, err = initAgents(cfg.Agents, cfg.LLM.Retry, providers, log)
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}

	// 2. Tools
	app.Tools, err = initTools(cfg.Tools, log)
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}

	// 3. Orchestrator
	if initial == "" {
		initial = cfg.Agents.Initial
	}
	retry := toRetryPolicy(cfg.LLM.Retry)
	app.Orchestrator, err = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		MainAgents: app.Agents.Main,
		Visualizer: app.Agents.Visualizer,
		Dispatcher: usecase.NewToolDispatcher(app.Agents.Handler, app.Tools.Executor, retry, log),
		Resolver:   app.Agents.Resolver,
		Initial:    domain.AgentType(initial),
		Bus:        app.Bus,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	// 4. Turn journal
	opts := inbox.Options{
		PollInterval: cfg.Inbox.PollInterval,
		QueueSize:    cfg.Inbox.QueueSize,
		Logger:       log,
	}
	if cfg.Audit.Enabled {
		app.Audit, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
		opts.Recorder = app.Audit
	}

	// 5. Inbox
	app.Inbox = inbox.New(app.Orchestrator, opts)

	// 6. Scheduler
	if cfg.Scheduler.Enabled {
		app.Scheduler, err = initScheduler(app)
		if err != nil {
			return nil, fmt.Errorf("scheduler: %w", err)
		}
	}

	return app, nil
}

// initScheduler registers the housekeeping actions and the configured tasks.
// Tasks naming audit_retention are skipped when the journal is disabled.
func initScheduler(app *App) (*scheduling.Scheduler, error) {
	cfg := app.Config
	logs := app.Tools.Logs
	sched := scheduling.NewScheduler(app.Tools.Location, app.Logger)

	sched.RegisterAction(scheduling.ActionCalendarReset, func(ctx context.Context) error {
		if err := logs.ResetCalendar(); err != nil {
			return err
		}
		app.Bus.PublishPayload(ctx, domain.EventCalendarUpdate, "", map[string]bool{"reset": true})
		return nil
	})
	sched.RegisterAction(scheduling.ActionNotificationTrim, func(ctx context.Context) error {
		removed, err := logs.TrimNotifications(cfg.Scheduler.NotificationKeep)
		if err != nil {
			return err
		}
		if removed > 0 {
			app.Logger.Info("notification log trimmed", "removed", removed)
			app.Bus.PublishPayload(ctx, domain.EventLogsUpdated, "", map[string]int{"removed": removed})
		}
		return nil
	})
	if app.Audit != nil {
		sched.RegisterAction(scheduling.ActionAuditRetention, func(ctx context.Context) error {
			n, err := app.Audit.Prune(ctx, cfg.Audit.MaxAge)
			if err != nil {
				return err
			}
			app.Logger.Info("turn journal pruned", "removed", n)
			return nil
		})
	}

	for _, t := range cfg.Scheduler.Tasks {
		action := scheduling.ScheduledAction(t.Action)
		if action == scheduling.ActionAuditRetention && app.Audit == nil {
			app.Logger.Warn("audit disabled, skipping task", "task", t.Name)
			continue
		}
		if err := sched.AddTask(scheduling.ScheduledTask{Name: t.Name, Schedule: t.Schedule, Action: action}); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Gateway creates the HTTP gateway in front of the inbox. addr overrides
// gateway.addr when set.
func (a *App) Gateway(addr string) *gateway.Server {
	g := a.Config.Gateway
	if addr == "" {
		addr = g.Addr
	}
	opts := gateway.Options{
		Addr:           addr,
		Source:         inbox.SourceHTTP,
		AllowedOrigins: g.AllowedOrigins,
		RequestTimeout: g.RequestTimeout,
		ChartDir:       a.Config.Tools.ChartDir,
	}
	if g.RateLimit.Enabled {
		opts.RateLimit = middleware.RateLimitConfig{
			RequestsPerSecond: g.RateLimit.RequestsPerSecond,
			Burst:             g.RateLimit.Burst,
		}
	}
	return gateway.NewServer(opts, gateway.Deps{
		Turns:  a.Inbox,
		Logs:   a.Tools.Logs,
		Agent:  a.Orchestrator,
		Bus:    a.Bus,
		Logger: a.Logger,
	})
}

// Start launches the scheduler and the inbox consumer. The returned channel
// yields the consumer's exit error once.
func (a *App) Start(ctx context.Context) <-chan error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			a.Logger.Error("scheduler start failed", "error", err)
		}
	}
	errCh := make(chan error, 1)
	go func() { errCh <- a.Inbox.Run(ctx) }()
	return errCh
}

// Close stops background work and persists what is left. It is safe on a
// partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Scheduler != nil {
		errs = append(errs, a.Scheduler.Stop())
	}
	if a.Agents != nil {
		for _, h := range a.Agents.Histories {
			if err := h.Save(); err != nil {
				errs = append(errs, fmt.Errorf("save history: %w", err))
			}
		}
	}
	if a.Audit != nil {
		errs = append(errs, a.Audit.Close())
	}
	a.Bus.Close()
	return errors.Join(errs...)
}

// exitErr maps the inbox exit reason to a command result. A shutdown word
// and a cancelled context are normal exits.
func exitErr(err error) error {
	if err == nil || errors.Is(err, domain.ErrShutdownRequested) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
