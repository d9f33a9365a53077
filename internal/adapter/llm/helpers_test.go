package llm

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"yinsen/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		want      error
		retryable bool
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit, true},
		{http.StatusUnauthorized, domain.ErrAuthInvalid, false},
		{http.StatusForbidden, domain.ErrAuthInvalid, false},
		{http.StatusGatewayTimeout, domain.ErrTimeout, true},
		{http.StatusInternalServerError, domain.ErrServerError, true},
		{http.StatusServiceUnavailable, domain.ErrServerError, true},
		{http.StatusBadRequest, domain.ErrInvalidInput, false},
		{http.StatusRequestEntityTooLarge, domain.ErrInvalidInput, false},
	}
	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte(`{"error":"x"}`))
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
		if got := domain.IsRetryableError(err); got != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestMapHTTPErrorTruncatesBody(t *testing.T) {
	err := mapHTTPError(http.StatusBadGateway, []byte(strings.Repeat("x", 5000)))
	if len(err.Error()) > 700 {
		t.Errorf("error message not truncated: %d bytes", len(err.Error()))
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]domain.Message{
		{Role: domain.RoleSystem, Content: "You are Flock."},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleSystem, Content: "Be brief."},
		{Role: domain.RoleAssistant, Content: "hello"},
	})
	if system != "You are Flock.\n\nBe brief." {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 2 || rest[0].Content != "hi" || rest[1].Content != "hello" {
		t.Errorf("rest = %+v", rest)
	}
}
