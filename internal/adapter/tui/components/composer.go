package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"yinsen/internal/adapter/tui/theme"
)

// InputSubmitMsg is emitted when the user sends a line.
type InputSubmitMsg struct {
	Value string
}

// ParseSlashCommand splits "/format html" into ("/format", ["html"]).
// ok is false for anything that is not a slash command.
func ParseSlashCommand(input string) (cmd string, args []string, ok bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// maxRecall bounds the sent-message history kept for Up/Down recall.
const maxRecall = 50

// Composer is the message input: a textarea with a slash-command menu and
// recall of previously sent messages.
type Composer struct {
	Textarea textarea.Model
	Menu     CommandMenu
	Enabled  bool

	sent   []string
	recall int    // index into sent while browsing; len(sent) when not
	draft  string // unsent text saved when browsing starts
}

// NewComposer creates an enabled, focused composer.
func NewComposer(commands []CommandDef) Composer {
	ta := textarea.New()
	ta.Placeholder = "Message your assistant, or /help"
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = theme.InputPrompt
	ta.FocusedStyle.Placeholder = theme.InputPlaceholder
	ta.Focus()

	return Composer{
		Textarea: ta,
		Menu:     NewCommandMenu(commands),
		Enabled:  true,
	}
}

// SetWidth resizes the textarea and the menu.
func (m *Composer) SetWidth(w int) {
	m.Textarea.SetWidth(w - 2)
	m.Menu.SetWidth(w)
}

// SetEnabled focuses or blurs the input. A disabled composer ignores keys.
func (m *Composer) SetEnabled(enabled bool) {
	m.Enabled = enabled
	if enabled {
		m.Textarea.Focus()
	} else {
		m.Textarea.Blur()
	}
}

// Value is the current text.
func (m Composer) Value() string { return m.Textarea.Value() }

// Update handles keys. Enter sends; Alt+Enter inserts a newline. While the
// menu is open Tab and the arrows move through it and Enter picks. Otherwise
// Up and Down on a single-line input walk the sent history.
func (m Composer) Update(msg tea.Msg) (Composer, tea.Cmd) {
	if !m.Enabled {
		return m, nil
	}
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if _, mouse := msg.(tea.MouseMsg); mouse {
			return m, nil
		}
		var cmd tea.Cmd
		m.Textarea, cmd = m.Textarea.Update(msg)
		return m, cmd
	}

	if m.Menu.Open() {
		switch key.Type {
		case tea.KeyTab, tea.KeyDown:
			m.Menu.Move(1)
			return m, nil
		case tea.KeyShiftTab, tea.KeyUp:
			m.Menu.Move(-1)
			return m, nil
		case tea.KeyEnter:
			if pick := m.Menu.Choose(); pick != "" {
				m.Textarea.SetValue(pick)
				m.Textarea.CursorEnd()
				m.Menu.Filter(pick)
			}
			return m, nil
		case tea.KeyEsc:
			m.Menu.Close()
			return m, nil
		}
	}

	switch key.Type {
	case tea.KeyEnter:
		if key.Alt {
			m.Textarea.InsertString("\n")
			m.Menu.Close()
			return m, nil
		}
		return m.send()
	case tea.KeyUp:
		if m.Textarea.LineCount() <= 1 && m.browse(-1) {
			return m, nil
		}
	case tea.KeyDown:
		if m.Textarea.LineCount() <= 1 && m.browse(1) {
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.Textarea, cmd = m.Textarea.Update(msg)
	m.Menu.Filter(m.Textarea.Value())
	return m, cmd
}

func (m Composer) send() (Composer, tea.Cmd) {
	value := strings.TrimSpace(m.Textarea.Value())
	if value == "" {
		return m, nil
	}
	if n := len(m.sent); n == 0 || m.sent[n-1] != value {
		m.sent = append(m.sent, value)
		if len(m.sent) > maxRecall {
			m.sent = m.sent[len(m.sent)-maxRecall:]
		}
	}
	m.recall = len(m.sent)
	m.draft = ""
	m.Textarea.Reset()
	m.Menu.Close()
	return m, func() tea.Msg { return InputSubmitMsg{Value: value} }
}

// browse moves through sent messages. It reports whether it consumed the key.
func (m *Composer) browse(delta int) bool {
	if len(m.sent) == 0 {
		return false
	}
	if m.recall >= len(m.sent) && delta > 0 {
		return false
	}
	if m.recall >= len(m.sent) {
		m.draft = m.Textarea.Value()
	}

	next := min(max(m.recall+delta, 0), len(m.sent))
	m.recall = next
	if next == len(m.sent) {
		m.Textarea.SetValue(m.draft)
	} else {
		m.Textarea.SetValue(m.sent[next])
	}
	m.Textarea.CursorEnd()
	return true
}

// View renders the menu, when open, above the textarea.
func (m Composer) View() string {
	if menu := m.Menu.View(); menu != "" {
		return menu + "\n" + m.Textarea.View()
	}
	return m.Textarea.View()
}
