package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"yinsen/internal/adapter/tui/theme"
)

// LogPaneModel shows the notification and calendar logs side by side with
// the chat.
type LogPaneModel struct {
	Viewport      viewport.Model
	notifications []string
	calendar      []string
	ready         bool
}

// NewLogPane creates an empty log pane.
func NewLogPane() LogPaneModel {
	return LogPaneModel{}
}

// SetSize sets the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	m.refresh()
}

// SetLogs replaces both logs.
func (m *LogPaneModel) SetLogs(notifications, calendar []string) {
	m.notifications = notifications
	m.calendar = calendar
	m.refresh()
}

// Counts returns the number of notification and calendar entries.
func (m LogPaneModel) Counts() (int, int) {
	return len(m.notifications), len(m.calendar)
}

// Update handles scrolling.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	return m, cmd
}

// View renders the pane.
func (m LogPaneModel) View() string {
	if !m.ready {
		return ""
	}
	return m.Viewport.View()
}

// Content renders the pane body without the viewport.
func (m LogPaneModel) Content() string {
	width := m.Viewport.Width - 2
	var sb strings.Builder
	section := func(title string, entries []string) {
		sb.WriteString(theme.PaneTitle.Render(title) + "\n")
		if len(entries) == 0 {
			sb.WriteString(theme.TextMuted.Render("  (empty)") + "\n")
		}
		for _, e := range entries {
			sb.WriteString(theme.TextMuted.Render(theme.SymbolBullet) + " " + wrapText(e, width-2) + "\n")
		}
	}
	section("Notifications", m.notifications)
	sb.WriteString("\n")
	section("Calendar", m.calendar)
	return sb.String()
}

func (m *LogPaneModel) refresh() {
	if !m.ready {
		return
	}
	m.Viewport.SetContent(m.Content())
}
