package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"yinsen/internal/adapter/tool"
	"yinsen/internal/adapter/tui/chat"
	"yinsen/internal/domain"
	"yinsen/internal/infra/config"
	"yinsen/internal/infra/logger"
	"yinsen/internal/usecase/inbox"
)

// Run starts the console chat, and the gateway when enabled. It returns
// when the user quits, a shutdown word is processed or a signal arrives.
func (c *RunCmd) Run(rc *runContext) error {
	plain := rc.globals.Plain
	s, err := rc.open(!plain)
	if err != nil {
		return err
	}
	defer s.cleanup()
	app := s.app

	ctx, cancel := context.WithCancel(rc.ctx)
	defer cancel()
	inboxErr := app.Start(ctx)

	if c.Gateway || app.Config.Gateway.Enabled {
		gw := app.Gateway("")
		go func() {
			if err := gw.Start(ctx); err != nil {
				app.Logger.Error("gateway server error", "error", err)
			}
		}()
	}

	var uiErr error
	if plain {
		// A shutdown word can also arrive over HTTP; stop reading then.
		go func() {
			select {
			case <-app.Inbox.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		con := &console{turns: app.Inbox, source: inbox.SourceText, in: rc.stdin, out: rc.stdout}
		uiErr = con.run(ctx)
	} else {
		uiErr = chat.Run(ctx, chat.Deps{
			Turns:  app.Inbox,
			Logs:   app.Tools.Logs,
			Agent:  app.Orchestrator,
			Source: inbox.SourceText,
			Logger: app.Logger,
		}, app.Bus, app.Inbox.Done())
	}

	cancel()
	runErr := <-inboxErr
	if uiErr != nil {
		return uiErr
	}
	return exitErr(runErr)
}

// Run serves the gateway until a signal or a shutdown word.
func (c *ServeCmd) Run(rc *runContext) error {
	s, err := rc.open(false)
	if err != nil {
		return err
	}
	defer s.cleanup()
	app := s.app

	ctx, cancel := context.WithCancel(rc.ctx)
	defer cancel()
	inboxErr := app.Start(ctx)
	go func() {
		<-app.Inbox.Done()
		cancel()
	}()

	gwErr := app.Gateway(c.Addr).Start(ctx)
	cancel()
	runErr := <-inboxErr
	if gwErr != nil {
		return gwErr
	}
	return exitErr(runErr)
}

// Run submits one turn on the text source and prints the result.
func (c *AskCmd) Run(rc *runContext) error {
	text := strings.TrimSpace(strings.Join(c.Text, " "))
	if text == "" {
		return errors.New("nothing to ask")
	}

	s, err := rc.open(false)
	if err != nil {
		return err
	}
	defer s.cleanup()
	app := s.app

	ctx, cancel := context.WithCancel(rc.ctx)
	defer cancel()
	inboxErr := app.Start(ctx)

	res, err := app.Inbox.Submit(ctx, inbox.SourceText, text, domain.ParseResponseFormat(c.Format))
	cancel()
	runErr := <-inboxErr
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(rc.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResult(rc.stdout, res)
	}
	return exitErr(runErr)
}

// Run prints one log file, one entry per line.
func (c *LogsCmd) Run(rc *runContext) error {
	cfg, err := rc.loadConfig()
	if err != nil {
		return err
	}
	book := tool.NewLogBook(cfg.Tools.NotificationLog, cfg.Tools.CalendarLog, logger.Discard())

	read := book.Notifications
	if c.Kind == "calendar" {
		read = book.CalendarEntries
	}
	entries, err := read()
	if err != nil {
		return fmt.Errorf("read %s log: %w", c.Kind, err)
	}
	if len(entries) == 0 {
		fmt.Fprintf(rc.stdout, "no %s\n", c.Kind)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(rc.stdout, e)
	}
	return nil
}

// Run prints the enc: form of a secret.
func (c *EncryptCmd) Run(rc *runContext) error {
	if c.Passphrase == "" {
		return errors.New("passphrase required: set " + config.EnvPrefix + "CONFIG_KEY or pass --passphrase")
	}
	enc, err := config.EncryptValue(c.Value, c.Passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintf(rc.stdout, "enc:%s\n", enc)
	return nil
}

// Run prints the build version.
func (c *VersionCmd) Run(rc *runContext) error {
	fmt.Fprintf(rc.stdout, "yinsen %s (%s)\n", version, commit)
	return nil
}
