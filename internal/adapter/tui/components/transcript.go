package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"yinsen/internal/adapter/tui/theme"
)

// Transcript is the scrollable conversation. It follows new messages while
// the view is at the bottom and counts the ones that arrive while the user
// has scrolled up.
type Transcript struct {
	Viewport viewport.Model
	Messages MessageListModel

	sized  bool
	follow bool
	unseen int
}

// NewTranscript creates an empty transcript. The viewport is created on
// the first SetSize.
func NewTranscript(maxMessages int) Transcript {
	msgs := NewMessageList()
	msgs.SetMaxMessages(maxMessages)
	return Transcript{Messages: msgs, follow: true}
}

// SetSize resizes the viewport. One line is kept for the unseen indicator.
func (m *Transcript) SetSize(w, h int) {
	m.Messages.SetWidth(w)
	h = max(h-1, 1)
	if !m.sized {
		m.Viewport = viewport.New(w, h)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.sized = true
	} else {
		m.Viewport.Width, m.Viewport.Height = w, h
	}
	m.render()
}

// AddMessage appends msg.
func (m *Transcript) AddMessage(msg ChatMessage) {
	m.Messages.Add(msg)
	if !m.follow {
		m.unseen++
	}
	m.render()
}

// UpdateLastMessage replaces the text of the newest message.
func (m *Transcript) UpdateLastMessage(content string) {
	m.Messages.UpdateLast(content)
	m.render()
}

// Clear drops every message.
func (m *Transcript) Clear() {
	m.Messages.Clear()
	m.follow, m.unseen = true, 0
	m.render()
}

// Unseen is the number of messages added since the user scrolled away.
func (m Transcript) Unseen() int { return m.unseen }

// Update scrolls the viewport and tracks whether to follow.
func (m Transcript) Update(msg tea.Msg) (Transcript, tea.Cmd) {
	if !m.sized {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.follow = m.Viewport.AtBottom()
	if m.follow {
		m.unseen = 0
	}
	return m, cmd
}

// View renders the viewport and, when scrolled up, the unseen count.
func (m Transcript) View() string {
	if !m.sized {
		return "  Initializing..."
	}
	footer := ""
	if m.unseen > 0 {
		footer = theme.TextInfo.Render(fmt.Sprintf("  %d new below, PgDn to read", m.unseen))
	}
	return m.Viewport.View() + "\n" + footer
}

func (m *Transcript) render() {
	if !m.sized {
		return
	}
	m.Viewport.SetContent(m.Messages.View())
	if m.follow {
		m.Viewport.GotoBottom()
	}
}
