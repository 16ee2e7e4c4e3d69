package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/deskmate-app/deskmate/internal/event"
)

// coreEventMsg wraps one core event (bridge/capture/proactive) for the
// bubbletea update loop.
type coreEventMsg struct {
	event event.Event
}

// replyMsg carries the outcome of one user message round-trip.
type replyMsg struct {
	text string
	err  error
}

// waitForEvent blocks on the event channel and converts the next core
// event into a tea message. Update re-arms it after every delivery.
func waitForEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return coreEventMsg{event: e}
	}
}
