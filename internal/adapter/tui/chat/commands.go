package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"yinsen/internal/domain"
)

// submitCmd runs the turn in the background. The inbox serialises it with
// turns from other sources.
func submitCmd(ctx context.Context, turns TurnSubmitter, source, input string, format domain.ResponseFormat, gen uint64) tea.Cmd {
	return func() tea.Msg {
		res, err := turns.Submit(ctx, source, input, format)
		return TurnDoneMsg{Result: res, Err: err, Gen: gen}
	}
}

func loadLogsCmd(logs LogReader) tea.Cmd {
	if logs == nil {
		return nil
	}
	return func() tea.Msg {
		notes, err := logs.Notifications()
		if err != nil {
			return LogsMsg{Err: err}
		}
		cal, err := logs.CalendarEntries()
		return LogsMsg{Notifications: notes, Calendar: cal, Err: err}
	}
}

// streamTickCmd schedules the next progressive-render step.
func streamTickCmd(rate time.Duration) tea.Cmd {
	if rate <= 0 {
		rate = 16 * time.Millisecond
	}
	return tea.Tick(rate, func(time.Time) tea.Msg {
		return StreamTickMsg{}
	})
}
