package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"yinsen/internal/domain"
	"yinsen/internal/usecase/inbox"
)

// turnSubmitter is the part of the inbox a console needs.
type turnSubmitter interface {
	Submit(ctx context.Context, source, input string, format domain.ResponseFormat) (domain.TurnResult, error)
}

// console is the line-mode producer: one line in, one turn out.
type console struct {
	turns  turnSubmitter
	source string
	in     io.Reader
	out    io.Writer
}

// run reads lines until EOF, a shutdown word, ctx cancellation or a closed
// inbox. Blank lines are ignored.
func (c *console) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		res, err := c.turns.Submit(ctx, c.source, line, "")
		switch {
		case errors.Is(err, domain.ErrInboxClosed), errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			fmt.Fprintf(c.out, "error: %v\n", err)
			continue
		}
		printResult(c.out, res)
		if inbox.IsShutdown(line) {
			return nil
		}
	}
}

// printResult writes the user-facing part of a turn result.
func printResult(w io.Writer, res domain.TurnResult) {
	if res.CurrentAgentName != "" {
		fmt.Fprintf(w, "[%s] %s\n", res.CurrentAgentName, res.FinalResponseToUser)
	} else {
		fmt.Fprintln(w, res.FinalResponseToUser)
	}
	for _, img := range res.DisplayImages {
		fmt.Fprintf(w, "  image: %s\n", img)
	}
	for _, u := range res.YoutubeURLs {
		fmt.Fprintf(w, "  video: %s\n", u)
	}
	if res.ToolError {
		fmt.Fprintln(w, "  (the tool reported an error)")
	}
}
