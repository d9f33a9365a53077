// Package main is the entry point for the yinsen assistant.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"yinsen/internal/infra/config"
	"yinsen/internal/infra/logger"
	"yinsen/internal/infra/tracer"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// .env supplies OPENAI_API_KEY and friends; a missing file is fine.
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("yinsen"),
		kong.Description("Multi-agent personal assistant: chat, calendar, email and expenses."),
		kong.UsageOnError(),
		kongVars(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := kctx.Run(&runContext{
		ctx:     ctx,
		globals: &cli.Globals,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "yinsen: %v\n", err)
		os.Exit(1)
	}
}

// runContext is bound into every command's Run method.
type runContext struct {
	ctx     context.Context
	globals *Globals
	stdin   io.Reader
	stdout  io.Writer
}

// session is a built App with its teardown.
type session struct {
	app     *App
	cleanup func()
}

// loadConfig reads the config file named by --config.
func (rc *runContext) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rc.globals.Config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// open builds the runtime. quiet drops log output that would otherwise
// draw over a full-screen UI.
func (rc *runContext) open(quiet bool) (*session, error) {
	cfg, err := rc.loadConfig()
	if err != nil {
		return nil, err
	}

	// 1. Logger & Tracer
	var log *slog.Logger
	logClose := func() error { return nil }
	if quiet && logger.IsTerminal(cfg.Logger.Output) {
		log = logger.Discard()
	} else {
		log, logClose, err = logger.New(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	tracerShutdown, err := tracer.Setup(rc.ctx, cfg.Tracer)
	if err != nil {
		_ = logClose()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	// 2. LLM providers
	abort := func() {
		_ = tracerShutdown(context.Background())
		_ = logClose()
	}
	providers, err := initLLM(rc.ctx, cfg.LLM, log)
	if err != nil {
		abort()
		return nil, fmt.Errorf("llm: %w", err)
	}

	// 3. Runtime
	app, err := buildApp(cfg, rc.globals.Agent, providers, log)
	if err != nil {
		abort()
		return nil, err
	}

	cleanup := func() {
		if err := app.Close(); err != nil {
			log.Error("shutdown error", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerShutdown(shutdownCtx)
		_ = logClose()
	}
	return &session{app: app, cleanup: cleanup}, nil
}
