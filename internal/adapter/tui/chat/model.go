package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"yinsen/internal/adapter/tui/components"
	"yinsen/internal/adapter/tui/theme"
	"yinsen/internal/adapter/tui/uxerror"
	"yinsen/internal/domain"
)

// TurnSubmitter queues a turn and waits for its result.
type TurnSubmitter interface {
	Submit(ctx context.Context, source, input string, format domain.ResponseFormat) (domain.TurnResult, error)
}

// LogReader exposes the notification and calendar logs.
type LogReader interface {
	Notifications() ([]string, error)
	CalendarEntries() ([]string, error)
}

// AgentReporter reports the agent currently holding the conversation.
type AgentReporter interface {
	CurrentAgent() domain.AgentIdentity
}

// Deps are the model's collaborators.
type Deps struct {
	Turns  TurnSubmitter
	Logs   LogReader     // optional
	Agent  AgentReporter // optional
	Source string        // inbox source; defaults to "text"
	Logger *slog.Logger
}

// Model is the root Bubble Tea model.
type Model struct {
	deps Deps

	chatView  components.Transcript
	input     components.Composer
	statusBar components.StatusBarModel
	logPane   components.LogPaneModel
	split     components.Columns
	spinner   spinner.Model

	waiting   bool
	streaming bool
	streamBuf []rune
	streamPos int
	streamCfg StreamConfig
	format    domain.ResponseFormat
	width     int
	height    int
	quitting  bool

	// gen increases with every request; results carrying an older gen are
	// from cancelled requests.
	gen      uint64
	cancelFn context.CancelFunc

	pendingTools []components.ToolCallSummary
}

// NewModel creates the chat model.
func NewModel(deps Deps) Model {
	if deps.Source == "" {
		deps.Source = "text"
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	sb := components.NewStatusBar()
	sb.Hints = defaultHints()
	if deps.Agent != nil {
		id := deps.Agent.CurrentAgent()
		sb.AgentName, sb.AgentType = id.Name, string(id.Type)
	}

	return Model{
		deps:      deps,
		chatView:  components.NewTranscript(1000),
		input:     components.NewComposer(slashCommands),
		statusBar: sb,
		logPane:   components.NewLogPane(),
		split:     components.NewColumns(deps.Logs != nil),
		spinner:   s,
		streamCfg: StreamConfigForSpeed(StreamNormal),
		format:    domain.FormatText,
	}
}

var slashCommands = []components.CommandDef{
	{Name: "/help", Description: "Show available commands"},
	{Name: "/agent", Description: "Show the current agent"},
	{Name: "/logs", Description: "Reload notifications and calendar"},
	{Name: "/format", Args: []string{"text", "html"}, Description: "Set reply format"},
	{Name: "/speed", Description: "Cycle reply speed"},
	{Name: "/clear", Description: "Clear the screen"},
	{Name: "/cancel", Description: "Stop waiting for the reply"},
	{Name: "/quit", Description: "Leave the chat"},
}

// Init starts the spinner and loads the logs.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadLogsCmd(m.deps.Logs))
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case components.InputSubmitMsg:
		return m.handleSubmit(msg.Value)

	case TurnDoneMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		return m.handleTurnDone(msg)

	case StreamTickMsg:
		return m.handleStreamTick()

	case LogsMsg:
		if msg.Err != nil {
			m.deps.Logger.Warn("tui: read logs failed", "error", msg.Err)
		}
		m.logPane.SetLogs(msg.Notifications, msg.Calendar)
		return m, nil

	case LogsChangedMsg:
		return m, loadLogsCmd(m.deps.Logs)

	case ToolExecutedMsg:
		m.pendingTools = append(m.pendingTools, components.ToolCallSummary{
			Name: msg.Name, Action: msg.Action, IsError: msg.IsError,
		})
		if m.waiting {
			m.statusBar.Extra = theme.SymbolSpinner + " " + msg.Name + " done, thinking..."
		}
		return m, nil

	case AgentSwitchedMsg:
		m.statusBar.AgentName, m.statusBar.AgentType = msg.To.Name, string(msg.To.Type)
		m.chatView.AddMessage(components.ChatMessage{
			Role:    components.RoleSystem,
			Content: fmt.Sprintf("%s Handing over to %s", theme.SymbolArrowR, msg.To.Name),
		})
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		if _, isMouse := msg.(tea.MouseMsg); !isMouse {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.chatView, cmd = m.chatView.Update(msg)
	cmds = append(cmds, cmd)
	if m.split.Showing() && m.split.Focused == components.PaneRight {
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 {
		return "  Initializing..."
	}

	content := m.chatView.View()
	if m.split.Showing() {
		content = m.split.Render(content, m.logPane.View())
	}

	inputView := m.input.View()
	if m.waiting {
		inputView = theme.Dim.Render("> waiting for a reply...") + "\n" + m.spinner.View() + " " + m.statusBar.Extra
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		content,
		components.Divider(m.width),
		inputView,
		m.statusBar.View(),
	)
}

func (m *Model) layout() {
	const inputH, statusH, dividerH = 3, 1, 1
	contentH := max(m.height-inputH-statusH-dividerH, 5)

	m.statusBar.SetWidth(m.width)
	m.split.SetSize(m.width, contentH)
	m.chatView.SetSize(m.split.LeftWidth(), contentH)
	m.input.SetWidth(m.width)
	if m.split.Showing() {
		m.logPane.SetSize(m.split.RightWidth(), contentH)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.waiting {
			m.cancelRequest("Stopped waiting. The turn still finishes in the background.")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case tea.KeyCtrlT:
		m.split.Toggle()
		m.layout()
		return m, nil

	case tea.KeyTab:
		if m.split.Showing() && !m.input.Menu.Open() {
			m.split.SwitchFocus()
			return m, nil
		}

	case tea.KeyCtrlL:
		return m.handleSlashCommand("/clear", nil)

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	}

	if m.split.Showing() && m.split.Focused == components.PaneRight {
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSubmit(value string) (tea.Model, tea.Cmd) {
	if cmd, args, ok := components.ParseSlashCommand(value); ok {
		return m.handleSlashCommand(cmd, args)
	}
	if m.cancelFn != nil {
		m.cancelFn()
	}

	m.chatView.AddMessage(components.ChatMessage{Role: components.RoleUser, Content: value})
	m.pendingTools = nil

	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel

	m.waiting = true
	m.streaming = false
	m.input.SetEnabled(false)
	m.statusBar.Extra = theme.SymbolSpinner + " Thinking..."

	return m, submitCmd(ctx, m.deps.Turns, m.deps.Source, value, m.format, m.gen)
}

func (m Model) handleTurnDone(msg TurnDoneMsg) (tea.Model, tea.Cmd) {
	m.cancelFn = nil
	if msg.Err != nil {
		if !errors.Is(msg.Err, context.Canceled) {
			m.chatView.AddMessage(components.ChatMessage{
				Role:    components.RoleError,
				Content: uxerror.Humanize(msg.Err).Render(),
			})
		}
		m.finishWaiting()
		if errors.Is(msg.Err, domain.ErrInboxClosed) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	res := msg.Result
	m.statusBar.AgentName, m.statusBar.AgentType = res.CurrentAgentName, res.CurrentAgentType

	links := append(append([]string{}, res.YoutubeURLs...), res.DisplayImages...)
	m.chatView.AddMessage(components.ChatMessage{
		Role:      components.RoleAgent,
		Agent:     res.CurrentAgentName,
		ToolCalls: m.pendingTools,
		Links:     links,
	})
	m.pendingTools = nil
	if res.Degraded {
		m.chatView.AddMessage(components.ChatMessage{
			Role:    components.RoleSystem,
			Content: theme.SymbolWarning + " This reply may be incomplete; check the logs.",
		})
	}

	var cmds []tea.Cmd
	if res.LogsUpdated || res.CalendarUpdated {
		cmds = append(cmds, loadLogsCmd(m.deps.Logs))
	}

	if m.streamCfg.Speed == StreamInstant {
		m.chatView.UpdateLastMessage(res.FinalResponseToUser)
		m.finishWaiting()
		return m, tea.Batch(cmds...)
	}
	m.streamBuf = []rune(res.FinalResponseToUser)
	m.streamPos = 0
	m.streaming = true
	cmds = append(cmds, streamTickCmd(m.streamCfg.TickRate))
	return m, tea.Batch(cmds...)
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if !m.streaming {
		return m, nil
	}
	m.streamPos = min(m.streamPos+m.streamCfg.ChunkSize, len(m.streamBuf))
	m.chatView.UpdateLastMessage(string(m.streamBuf[:m.streamPos]))

	if m.streamPos >= len(m.streamBuf) {
		m.finishWaiting()
		return m, nil
	}
	return m, streamTickCmd(m.streamCfg.TickRate)
}

func (m Model) handleSlashCommand(cmd string, args []string) (tea.Model, tea.Cmd) {
	system := func(text string) {
		m.chatView.AddMessage(components.ChatMessage{Role: components.RoleSystem, Content: text})
	}

	switch cmd {
	case "/help":
		var sb strings.Builder
		sb.WriteString("Commands:\n")
		for _, c := range slashCommands {
			fmt.Fprintf(&sb, "  %-9s %s\n", c.Name, c.Description)
		}
		sb.WriteString("\nKeys: Enter send, Alt+Enter newline, Ctrl+T log pane, Tab switch pane, Ctrl+L clear, Ctrl+C cancel/quit.\n")
		sb.WriteString("Saying \"exit\", \"quit\" or \"shutdown\" stops the assistant.")
		system(sb.String())

	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit

	case "/clear":
		m.chatView.Clear()
		system(theme.SymbolSuccess + " Screen cleared. The agents keep their history.")

	case "/cancel":
		if m.waiting {
			m.cancelRequest("Stopped waiting. The turn still finishes in the background.")
		} else {
			system("Nothing to cancel.")
		}

	case "/agent":
		if m.deps.Agent == nil {
			system("Current agent: " + m.statusBar.AgentName)
			break
		}
		id := m.deps.Agent.CurrentAgent()
		system(fmt.Sprintf("Current agent: %s (%s)", id.Name, id.Type))

	case "/logs":
		return m, loadLogsCmd(m.deps.Logs)

	case "/format":
		if len(args) == 0 {
			system("Reply format: " + strings.ToLower(string(m.format)))
			break
		}
		m.format = domain.ParseResponseFormat(args[0])
		system("Reply format: " + strings.ToLower(string(m.format)))

	case "/speed":
		m.streamCfg = StreamConfigForSpeed(CycleStreamSpeed(m.streamCfg.Speed))
		system("Reply speed: " + m.streamCfg.Speed.String())

	default:
		system(fmt.Sprintf("Unknown command: %s. Type /help for the list.", cmd))
	}
	return m, nil
}

// cancelRequest stops waiting for the in-flight turn. The inbox still runs
// it to completion, so the agents' history stays consistent.
func (m *Model) cancelRequest(reason string) {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.gen++
	m.pendingTools = nil
	m.finishWaiting()
	m.chatView.AddMessage(components.ChatMessage{Role: components.RoleSystem, Content: reason})
}

func (m *Model) finishWaiting() {
	m.waiting = false
	m.streaming = false
	m.input.SetEnabled(true)
	m.statusBar.Extra = ""
}

func defaultHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "Enter", Desc: "Send"},
		{Key: "Ctrl+T", Desc: "Logs"},
		{Key: "/help", Desc: "Help"},
		{Key: "Ctrl+C", Desc: "Quit"},
	}
}

// Bridge forwards bus events the chat cares about to send, which is
// usually (*tea.Program).Send. It returns an unsubscribe function.
func Bridge(bus domain.EventBus, send func(tea.Msg)) func() {
	unsubs := []func(){
		bus.Subscribe(domain.EventToolExecuted, func(_ context.Context, e domain.Event) {
			var p domain.ToolExecutedPayload
			if json.Unmarshal(e.Payload, &p) == nil {
				send(ToolExecutedMsg{Name: p.Tool, Action: p.Action, IsError: p.IsError})
			}
		}),
		bus.Subscribe(domain.EventAgentSwitched, func(_ context.Context, e domain.Event) {
			var p domain.AgentSwitchedPayload
			if json.Unmarshal(e.Payload, &p) == nil {
				send(AgentSwitchedMsg{To: p.To})
			}
		}),
		bus.Subscribe(domain.EventLogsUpdated, func(context.Context, domain.Event) { send(LogsChangedMsg{}) }),
		bus.Subscribe(domain.EventCalendarUpdate, func(context.Context, domain.Event) { send(LogsChangedMsg{}) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Run starts the chat full-screen and blocks until the user quits, ctx is
// cancelled or done closes.
func Run(ctx context.Context, deps Deps, bus domain.EventBus, done <-chan struct{}) error {
	p := tea.NewProgram(NewModel(deps),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if bus != nil {
		defer Bridge(bus, p.Send)()
	}
	if done != nil {
		go func() {
			select {
			case <-done:
				p.Send(QuitMsg{})
			case <-ctx.Done():
			}
		}()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
