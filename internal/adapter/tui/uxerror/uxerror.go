// Package uxerror turns raw errors into short messages with recovery hints.
package uxerror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"yinsen/internal/adapter/tui/theme"
	"yinsen/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the error for the message list.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			fmt.Fprintf(&sb, "\n    %s %s", theme.SymbolBullet, h)
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Sentinels first so errors.Is sees through wrapping.
	{
		match:   is(domain.ErrInboxClosed),
		produce: constantError("Assistant Stopped", "The assistant is shutting down and no longer takes requests.", []string{"Restart yinsen"}),
	},
	{
		match:   is(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "The LLM provider rejected the API key.", []string{"Check OPENAI_API_KEY or the provider's api_key", "Run 'yinsen encrypt' if you store keys encrypted"}),
	},
	{
		match:   is(domain.ErrRateLimit),
		produce: constantError("Rate Limited", "The LLM provider is throttling requests.", []string{"Wait a moment before retrying", "Configure a failover provider"}),
	},
	{
		match: func(err error) bool {
			return errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
		},
		produce: constantError("Request Timed Out", "The turn took too long to complete.", []string{"Try a shorter request", "Check your network connection"}),
	},
	{
		match:   is(domain.ErrServerError),
		produce: constantError("Provider Unavailable", "The LLM provider returned a server error.", []string{"Try again shortly", "Configure a failover provider"}),
	},
	{
		match:   is(domain.ErrPersistence),
		produce: constantError("History Not Saved", "The conversation history could not be written to disk.", []string{"Check free space and permissions on the data directory"}),
	},

	// External errors only show up as text.
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the LLM provider.", []string{"Check your internet connection", "Verify base_url in config"}),
	},
}

// Humanize converts a raw error into a FriendlyError.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with --log-level debug for details"},
		Raw:     err.Error(),
	}
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{Title: title, Message: message, Hints: hints, Raw: err.Error()}
	}
}
