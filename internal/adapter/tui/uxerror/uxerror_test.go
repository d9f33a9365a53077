package uxerror

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"yinsen/internal/domain"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{"inbox closed", domain.WrapOp("Inbox.Submit", domain.ErrInboxClosed), "Assistant Stopped"},
		{"auth", domain.NewDomainError("openai.Chat", domain.ErrAuthInvalid, "401"), "Authentication Failed"},
		{"rate limit", domain.ErrRateLimit, "Rate Limited"},
		{"deadline", context.DeadlineExceeded, "Request Timed Out"},
		{"timeout sentinel", domain.ErrTimeout, "Request Timed Out"},
		{"server", domain.ErrServerError, "Provider Unavailable"},
		{"dial", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), "Connection Failed"},
		{"other", errors.New("boom"), "Unexpected Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Humanize(tt.err)
			assert.Equal(t, tt.title, fe.Title)
			assert.Equal(t, tt.err.Error(), fe.Raw)
		})
	}
}

func TestHumanizeNil(t *testing.T) {
	assert.Equal(t, "Unknown Error", Humanize(nil).Title)
}

func TestRender(t *testing.T) {
	out := Humanize(domain.ErrRateLimit).Render()
	assert.Contains(t, out, "Rate Limited")
	assert.Contains(t, out, "Suggestions:")
	assert.Contains(t, out, "Wait a moment")
}
