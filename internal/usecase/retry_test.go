package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"yinsen/internal/domain"
)

func TestRetryBackoffBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	for attempt := 0; attempt < 10; attempt++ {
		d := p.backoff(attempt)
		base := p.BaseDelay * time.Duration(1<<uint(attempt))
		if base > p.MaxDelay {
			base = p.MaxDelay
		}
		if d < base || d > base+base/4 {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, d, base, base+base/4)
		}
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), testLogger(), "op", func(context.Context) error {
		calls++
		return domain.ErrInvalidInput
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPerCallTimeout(t *testing.T) {
	p := fastRetry()
	p.CallTimeout = 5 * time.Millisecond
	calls := 0
	err := p.Do(context.Background(), testLogger(), "slow", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if calls != p.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, p.MaxAttempts)
	}
}

func TestRetryHonoursParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastRetry().Do(ctx, testLogger(), "op", func(context.Context) error {
		calls++
		cancel()
		return domain.ErrRateLimit
	})
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFlattenResult(t *testing.T) {
	tests := []struct {
		name string
		in   *domain.ToolResult
		want string
	}{
		{"nil", nil, "None"},
		{"status only", &domain.ToolResult{Status: domain.ToolStatusSuccess}, "{'status': 'success'}"},
		{
			"info with message",
			&domain.ToolResult{Status: domain.ToolStatusInfo, Message: "No expenses logged yet"},
			"{'status': 'info', 'message': 'No expenses logged yet'}",
		},
		{
			"data",
			&domain.ToolResult{Status: domain.ToolStatusSuccess, Data: map[string]int{"count": 3}},
			`{'status': 'success', 'data': {"count":3}}`,
		},
		{
			"string data",
			&domain.ToolResult{Status: domain.ToolStatusSuccess, Data: "shown in image plot. no data in text format"},
			"{'status': 'success', 'data': 'shown in image plot. no data in text format'}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlattenResult(tt.in); got != tt.want {
				t.Errorf("FlattenResult() = %s, want %s", got, tt.want)
			}
		})
	}
}
