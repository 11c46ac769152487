package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"trovobridge/pkg/bus"
	"trovobridge/pkg/channel"
)

const (
	defaultMaxLines = 500
	statsInterval   = time.Second
)

// SendFunc posts operator text into the chat.
type SendFunc func(ctx context.Context, text string) error

// Options configures the console.
type Options struct {
	// Channel is shown in the header.
	Channel string
	// Events feeds the live log; the console stops reading when it closes.
	Events <-chan bus.Event
	Send   SendFunc
	// Stats is polled once a second when set.
	Stats func() channel.Stats
	// MaxLines bounds the log kept in memory.
	MaxLines int
}

type logLine struct {
	at     time.Time
	kind   bus.EventType
	author string
	text   string
	err    string
}

type eventMsg struct{ event bus.Event }

type eventsClosedMsg struct{}

type sendResultMsg struct {
	text string
	err  error
}

type statsTickMsg struct{}

type model struct {
	ctx  context.Context
	opts Options

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	lines     []logLine
	width     int
	height    int
	isReady   bool
	sending   bool
	lastErr   string
	followLog bool
	closed    bool
	stats     channel.Stats
}

func newModel(ctx context.Context, opts Options) *model {
	if opts.MaxLines <= 0 {
		opts.MaxLines = defaultMaxLines
	}

	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("44"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something in chat..."
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:       ctx,
		opts:      opts,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.opts.Events), statsTickCmd(), textinput.Blink)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}
		if m.handleViewportKey(typed) {
			return m, nil
		}
		if typed.String() == "enter" {
			return m.submit()
		}
	case eventMsg:
		m.appendEvent(typed.event)
		return m, waitForEvent(m.opts.Events)
	case eventsClosedMsg:
		m.closed = true
		m.appendLine(logLine{at: time.Now(), kind: "", text: "event stream closed"})
		return m, nil
	case sendResultMsg:
		m.sending = false
		if typed.err != nil {
			m.lastErr = typed.err.Error()
		} else {
			m.lastErr = ""
		}
		return m, nil
	case statsTickMsg:
		if m.opts.Stats != nil {
			m.stats = m.opts.Stats()
		}
		return m, statsTickCmd()
	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) submit() (tea.Model, tea.Cmd) {
	if m.sending {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if isExitCommand(text) {
		return m, tea.Quit
	}
	if m.opts.Send == nil {
		m.lastErr = "sending is not available"
		return m, nil
	}

	m.input.SetValue("")
	m.sending = true
	m.lastErr = ""
	m.followLog = true
	return m, tea.Batch(m.spinner.Tick, sendCmd(m.ctx, m.opts.Send, text))
}

func (m *model) appendEvent(event bus.Event) {
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	line := logLine{at: at, kind: event.Type, author: event.Author, text: event.Text, err: event.Error}
	if event.Type == bus.EventChannelStarted {
		line.text = fmt.Sprintf("channel %s started (%s)", event.ChannelID, event.Payload["mode"])
	}
	m.appendLine(line)
}

func (m *model) appendLine(line logLine) {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - m.opts.MaxLines; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}
	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("📡 Trovo Bridge Console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"channel:%s · frames:%d · dispatched:%d · skipped:%d · dropped:%d · sent:%d · failed:%d",
		displayOrNA(m.opts.Channel),
		m.stats.Frames,
		m.stats.Dispatched,
		m.stats.Skipped,
		m.stats.Dropped,
		m.stats.Sent,
		m.stats.Failed+m.stats.SendErrors,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  🛑 Ctrl+C/Esc quit")
	switch {
	case m.sending:
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s sending to chat...", m.spinner.View()))
	case m.lastErr != "":
		status = m.theme.statusErr.Render("🚨 send failed: " + m.lastErr)
	case m.closed:
		status = m.theme.statusErr.Render("🔌 bridge stopped  ·  Ctrl+C/Esc quit")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("🎙 Say")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset

	rendered := make([]string, 0, len(m.lines))
	for _, line := range m.lines {
		rendered = append(rendered, m.renderLine(line))
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))

	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderLine(line logLine) string {
	stamp := m.theme.timestamp.Render(line.at.Local().Format("15:04:05"))
	var body string
	switch line.kind {
	case bus.EventActivityDispatched:
		body = "▸ " + m.theme.author.Render(line.author) + " " + m.theme.inbound.Render(line.text)
	case bus.EventActivitySent:
		body = m.theme.outbound.Render("◂ " + line.text)
	case bus.EventFrameDropped:
		body = m.theme.dropped.Render("✗ frame dropped: " + line.err)
	case bus.EventActivityFailed:
		body = m.theme.failed.Render("✗ activity failed: " + line.err)
	default:
		body = m.theme.system.Render("• " + line.text)
	}
	return stamp + " " + body
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func waitForEvent(events <-chan bus.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: event}
	}
}

func statsTickCmd() tea.Cmd {
	return tea.Tick(statsInterval, func(time.Time) tea.Msg {
		return statsTickMsg{}
	})
}

func sendCmd(ctx context.Context, send SendFunc, text string) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{text: text, err: send(ctx, text)}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
