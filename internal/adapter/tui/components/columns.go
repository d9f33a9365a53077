package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"yinsen/internal/adapter/tui/theme"
)

// Pane identifies a column.
type Pane int

const (
	PaneLeft Pane = iota
	PaneRight
)

// Log column bounds.
const (
	minLogWidth = 28
	maxLogWidth = 60
)

// Columns places the transcript on the left and the log pane on the right.
// The log column takes about a third of the width within fixed bounds and
// is hidden on terminals narrower than theme.MinSplitWidth.
type Columns struct {
	Visible bool
	Focused Pane

	width  int
	height int
}

// NewColumns creates the layout with the log column shown or hidden.
func NewColumns(visible bool) Columns {
	return Columns{Visible: visible}
}

func (c Columns) fits() bool { return c.width >= theme.MinSplitWidth }

// SetSize records the space available to both columns.
func (c *Columns) SetSize(w, h int) {
	c.width, c.height = w, h
	if !c.fits() {
		c.Focused = PaneLeft
	}
}

// Showing reports whether the log column is drawn at the current size.
func (c Columns) Showing() bool { return c.Visible && c.fits() }

// Toggle shows or hides the log column.
func (c *Columns) Toggle() {
	c.Visible = !c.Visible
	if !c.Visible {
		c.Focused = PaneLeft
	}
}

// SwitchFocus moves keyboard focus to the other column.
func (c *Columns) SwitchFocus() {
	if !c.Showing() || c.Focused == PaneRight {
		c.Focused = PaneLeft
		return
	}
	c.Focused = PaneRight
}

// RightWidth is the log column width, 0 when hidden.
func (c Columns) RightWidth() int {
	if !c.Showing() {
		return 0
	}
	return min(max(c.width/3, minLogWidth), maxLogWidth)
}

// LeftWidth is the transcript width.
func (c Columns) LeftWidth() int {
	if !c.Showing() {
		return c.width
	}
	return c.width - c.RightWidth() - 1
}

// Render joins the columns with a rule that lights up when the log column
// has focus.
func (c Columns) Render(left, right string) string {
	if !c.Showing() {
		return left
	}
	color := theme.ColorBorder
	if c.Focused == PaneRight {
		color = theme.ColorBorderActive
	}
	rule := lipgloss.NewStyle().Foreground(color).Render("│")
	ruleCol := strings.TrimSuffix(strings.Repeat(rule+"\n", max(c.height, 1)), "\n")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, ruleCol, right)
}
