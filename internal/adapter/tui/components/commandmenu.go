package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"yinsen/internal/adapter/tui/theme"
)

// CommandDef is one slash command. Args lists the accepted values of its
// single argument, if it has a fixed set.
type CommandDef struct {
	Name        string
	Args        []string
	Description string
}

// menuItem is one completion candidate: a command name, or a command name
// with one of its argument values.
type menuItem struct {
	insert string
	label  string
	hint   string
}

// CommandMenu completes slash commands and their enumerated arguments
// while the user types.
type CommandMenu struct {
	commands []CommandDef
	items    []menuItem
	cursor   int
	open     bool
	rows     int
	width    int
}

// NewCommandMenu creates a menu over commands.
func NewCommandMenu(commands []CommandDef) CommandMenu {
	return CommandMenu{commands: commands, rows: 6}
}

// Open reports whether the menu is showing.
func (m CommandMenu) Open() bool { return m.open }

// SetWidth sets the terminal width the popup is sized against.
func (m *CommandMenu) SetWidth(w int) { m.width = w }

// Filter recomputes the candidates for the current input. "/fo" lists
// commands, "/format h" lists the values of /format starting with "h".
func (m *CommandMenu) Filter(input string) {
	m.items = m.items[:0]
	if !strings.HasPrefix(input, "/") || strings.Contains(input, "\n") {
		m.Close()
		return
	}

	name, arg, hasArg := strings.Cut(input, " ")
	name = strings.ToLower(name)
	if !hasArg {
		for _, c := range m.commands {
			if strings.HasPrefix(c.Name, name) {
				m.items = append(m.items, menuItem{insert: c.Name, label: c.Name, hint: c.Description})
			}
		}
	} else if c, ok := m.lookup(name); ok && !strings.Contains(arg, " ") {
		arg = strings.ToLower(arg)
		for _, v := range c.Args {
			if strings.HasPrefix(v, arg) && v != arg {
				m.items = append(m.items, menuItem{insert: c.Name + " " + v, label: v, hint: c.Description})
			}
		}
	}

	m.open = len(m.items) > 0
	if m.cursor >= len(m.items) {
		m.cursor = 0
	}
}

func (m CommandMenu) lookup(name string) (CommandDef, bool) {
	for _, c := range m.commands {
		if c.Name == name {
			return c, true
		}
	}
	return CommandDef{}, false
}

// Close hides the menu.
func (m *CommandMenu) Close() {
	m.open = false
	m.items = m.items[:0]
	m.cursor = 0
}

// Move shifts the highlighted row by delta, wrapping at either end.
func (m *CommandMenu) Move(delta int) {
	n := len(m.items)
	if n == 0 {
		return
	}
	m.cursor = ((m.cursor+delta)%n + n) % n
}

// Choose returns the text to put in the input for the highlighted row and
// closes the menu. Commands that take an argument get a trailing space.
func (m *CommandMenu) Choose() string {
	if len(m.items) == 0 {
		return ""
	}
	insert := m.items[m.cursor].insert
	if c, ok := m.lookup(insert); ok && len(c.Args) > 0 {
		insert += " "
	}
	m.Close()
	return insert
}

// Height is the number of lines View occupies.
func (m CommandMenu) Height() int {
	if !m.open {
		return 0
	}
	return min(len(m.items), m.rows) + 2
}

// View renders the popup, keeping the highlighted row in view.
func (m CommandMenu) View() string {
	if !m.open {
		return ""
	}

	first := 0
	if m.cursor >= m.rows {
		first = m.cursor - m.rows + 1
	}
	last := min(first+m.rows, len(m.items))

	labelW := 0
	for _, it := range m.items[first:last] {
		labelW = max(labelW, len(it.label))
	}
	hintW := max(m.width-labelW-10, 10)

	lines := make([]string, 0, last-first)
	for i := first; i < last; i++ {
		it := m.items[i]
		hint := it.hint
		if len(hint) > hintW {
			hint = hint[:hintW-1] + theme.SymbolEllipsis
		}
		row := it.label + strings.Repeat(" ", labelW-len(it.label)+2) + theme.TextMuted.Render(hint)
		if i == m.cursor {
			row = theme.TextInfo.Render(theme.SymbolArrowR) + " " + row
		} else {
			row = "  " + row
		}
		lines = append(lines, row)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorderActive).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}
