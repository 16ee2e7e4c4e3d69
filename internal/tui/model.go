// Package tui is a terminal presentation layer for the companion core. It
// consumes the core's events and issues its commands; no companion logic
// lives here. It stands in for the desktop overlay during development and
// on headless machines.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/deskmate-app/deskmate/internal/event"
	"github.com/deskmate-app/deskmate/internal/proactive"
	"github.com/deskmate-app/deskmate/internal/shell"
)

// Model holds the TUI application state.
type Model struct {
	shell  *shell.Shell
	events <-chan event.Event

	viewport viewport.Model
	input    textinput.Model

	transcript []string
	agentState string
	width      int
	height     int
	ready      bool
	waiting    bool
	quitting   bool
}

// NewModel creates the TUI model. The events channel must be fed by a bus
// subscription established by the caller.
func NewModel(sh *shell.Shell, events <-chan event.Event) Model {
	input := textinput.New()
	input.Placeholder = "Say something (or /help)"
	input.Focus()

	return Model{
		shell:      sh,
		events:     events,
		input:      input,
		agentState: "starting",
	}
}

// Init starts the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - 4
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case coreEventMsg:
		m.handleCoreEvent(msg.event)
		return m, waitForEvent(m.events)

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			// The error text is the assistant's reply; the user must
			// see why nothing useful came back.
			m.appendLine(errorStyle.Render("deskmate: " + msg.err.Error()))
		} else if msg.text != "" {
			m.appendLine(assistantStyle.Render("deskmate: " + msg.text))
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles the enter key: slash commands run locally, anything else
// goes to the agent.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.waiting {
		return m, nil
	}
	m.input.Reset()

	if text == "/quit" {
		m.quitting = true
		return m, tea.Quit
	}
	if strings.HasPrefix(text, "/") {
		m.runCommand(text)
		return m, nil
	}

	m.appendLine(userStyle.Render("you: ") + text)
	m.waiting = true

	sh := m.shell
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		reply, err := sh.SendMessage(ctx, text)
		return replyMsg{text: reply, err: err}
	}
}

// runCommand executes one local slash command.
func (m *Model) runCommand(text string) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/help":
		m.appendLine(logStyle.Render(
			"commands: /status, /capture on|off, /interval <seconds>, /proactive on|off, /chance <0-1>, /quit"))

	case "/status":
		cs := m.shell.CaptureStatus()
		ps := m.shell.ProactiveStatus()
		m.appendLine(logStyle.Render(fmt.Sprintf(
			"agent=%s capture=%v every %ds (last error: %s) proactive=%v %d/%d today quiet %02d-%02d",
			m.agentState, cs.Enabled, cs.IntervalSeconds, orNone(cs.LastError),
			ps.Enabled, ps.SentToday, ps.MaxPerDay, ps.Quiet.Start, ps.Quiet.End)))

	case "/capture":
		if len(fields) == 2 {
			m.shell.SetCaptureEnabled(fields[1] == "on")
		}

	case "/interval":
		if len(fields) == 2 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				applied := m.shell.SetCaptureInterval(n)
				m.appendLine(logStyle.Render(fmt.Sprintf("capture interval set to %ds", applied)))
			}
		}

	case "/proactive":
		if len(fields) == 2 {
			m.shell.SetProactiveEnabled(fields[1] == "on")
		}

	case "/chance":
		if len(fields) == 2 {
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
				m.shell.ApplyProactiveConfig(proactive.ConfigPatch{RandomChance: &v})
			}
		}

	default:
		m.appendLine(logStyle.Render("unknown command: " + fields[0]))
	}
}

// handleCoreEvent renders one core event into the transcript or status.
func (m *Model) handleCoreEvent(e event.Event) {
	switch e := e.(type) {
	case event.BackendReadyEvent:
		m.agentState = "ready"
		m.appendLine(logStyle.Render(fmt.Sprintf("· agent ready (generation %d)", e.Generation)))
	case event.BackendExitedEvent:
		m.agentState = "restarting"
		m.appendLine(logStyle.Render(fmt.Sprintf("· agent exited (code %d), restarting", e.Code)))
	case event.ProactiveMessageEvent:
		m.appendLine(proactiveStyle.Render("deskmate (nudge): " + e.Text))
	case event.BackendLogEvent:
		m.appendLine(logStyle.Render("· " + e.Line))
	}
}

func (m *Model) appendLine(line string) {
	m.transcript = append(m.transcript, line)
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.transcript, "\n"))
	m.viewport.GotoBottom()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}

	title := titleStyle.Render("deskmate")
	status := statusStyle.Render("agent: " + m.agentState)
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", status)

	prompt := m.input.View()
	if m.waiting {
		prompt = statusStyle.Render("waiting for the agent...")
	}

	return header + "\n" + m.viewport.View() + "\n\n" + prompt
}
