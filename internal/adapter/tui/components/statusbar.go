package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"yinsen/internal/adapter/tui/theme"
)

// KeyHint is one keybinding shown in the status bar.
type KeyHint struct {
	Key  string
	Desc string
}

// StatusBarModel is the bottom line: key hints on the left, the current
// agent and activity on the right.
type StatusBarModel struct {
	Hints     []KeyHint
	AgentName string
	AgentType string
	Extra     string // e.g. "Thinking..."
	width     int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	hints := make([]string, 0, len(m.Hints))
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var right string
	if m.AgentName != "" {
		agent := m.AgentName
		if m.AgentType != "" {
			agent += " " + theme.SymbolBullet + " " + strings.ReplaceAll(m.AgentType, "_", " ")
		}
		right = theme.TextMuted.Render(agent)
	}
	if m.Extra != "" {
		if right != "" {
			right += "  "
		}
		right += theme.TextInfo.Render(m.Extra)
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
