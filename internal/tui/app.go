package tui

import (
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/deskmate-app/deskmate/internal/event"
	"github.com/deskmate-app/deskmate/internal/shell"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	model   Model
	bus     *event.Bus
	events  chan event.Event
	subIDs  []string
}

// New creates a new TUI application subscribed to the core's event bus.
func New(sh *shell.Shell, bus *event.Bus) *App {
	// Bus dispatch is synchronous, so the handler must never block. The
	// channel is buffered and overflow drops the oldest-style delivery:
	// a dropped status line is better than a stalled bridge read loop.
	events := make(chan event.Event, 256)
	a := &App{
		bus:    bus,
		events: events,
	}
	a.model = NewModel(sh, events)

	forward := func(e event.Event) {
		select {
		case events <- e:
		default:
		}
	}
	for _, typ := range []string{
		event.TypeBackendReady,
		event.TypeBackendExited,
		event.TypeBackendLog,
		event.TypeProactiveMessage,
	} {
		a.subIDs = append(a.subIDs, bus.Subscribe(typ, forward))
	}
	return a
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	a.program = tea.NewProgram(
		a.model,
		tea.WithAltScreen(),
	)

	// Translate SIGINT/SIGTERM into a clean TUI quit so deferred
	// component shutdown in the caller still runs.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		if a.program != nil {
			a.program.Send(tea.Quit())
		}
	}()

	_, err := a.program.Run()

	for _, id := range a.subIDs {
		a.bus.Unsubscribe(id)
	}
	close(a.events)
	return err
}
