package main

import (
	"fmt"
	"log/slog"
	"time"

	"yinsen/internal/adapter/tool"
	"yinsen/internal/infra/config"
)

// ToolComponents holds the tool executor and the log files it writes.
type ToolComponents struct {
	Executor *tool.Executor
	Logs     *tool.LogBook
	Location *time.Location
}

// loadLocation resolves tools.timezone; empty means the local zone.
func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("tools.timezone: %w", err)
	}
	return loc, nil
}

func initTools(cfg config.ToolsConfig, log *slog.Logger) (*ToolComponents, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	logs := tool.NewLogBook(cfg.NotificationLog, cfg.CalendarLog, log)
	if err := logs.Ensure(); err != nil {
		return nil, fmt.Errorf("log files: %w", err)
	}

	executor := tool.NewExecutor(cfg.Timeout, log)
	tools := []tool.Tool{
		tool.NewExpenseTool(tool.NewLedger(cfg.Ledger), logs, cfg.ChartDir, log),
		tool.NewCalendarTool(tool.NewMemoryCalendar(), logs, loc, log),
		tool.NewEmailTool(tool.NewOutboxBackend(cfg.Outbox), logs, tool.EmailOptions{
			DefaultFrom:     cfg.Email.From,
			MaxSendsPerHour: cfg.Email.MaxSendsPerHour,
			AllowedDomains:  cfg.Email.AllowedDomains,
		}, log),
		tool.NewDiaryTool(log),
	}
	for _, t := range tools {
		if err := executor.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}
	log.Info("tools registered", "tools", executor.Names())

	return &ToolComponents{Executor: executor, Logs: logs, Location: loc}, nil
}
