// Package bridge owns the background agent subprocess and provides
// call/response semantics over its standard streams.
//
// Messages are single newline-terminated JSON objects. Outgoing requests
// carry a fresh monotonically increasing identifier; incoming responses are
// correlated back to the waiting caller by that identifier, so responses
// may complete out of send order. When the agent exits unexpectedly, every
// outstanding request is rejected and the process is relaunched after a
// fixed backoff, indefinitely.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/deskmate-app/deskmate/internal/event"
	"github.com/deskmate-app/deskmate/internal/logging"
)

// State describes the bridge's subprocess lifecycle.
type State int

const (
	// StateStopped means no process has been started, or Stop was called.
	StateStopped State = iota
	// StateStarting means a launch is in progress.
	StateStarting
	// StateRunning means the process is live.
	StateRunning
	// StateExited means the process exited cleanly and a restart is pending.
	StateExited
	// StateErrored means the process exited with an error (or failed to
	// launch) and a restart is pending.
	StateErrored
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// maxLineBytes bounds a single framed message. Responses carry chat text,
// not bulk data, so 10 MiB is generous.
const maxLineBytes = 10 * 1024 * 1024

// result is the completion value delivered to a waiting Send call.
type result struct {
	payload json.RawMessage
	err     error
}

// pendingRequest is one in-flight request awaiting completion. Exactly one
// of {matching response, timeout, process exit, context cancellation}
// completes it: whichever removes it from the pending map first wins.
type pendingRequest struct {
	id    string
	done  chan result // buffered, capacity 1
	timer *time.Timer
}

// Bridge is the process bridge. It is safe for concurrent use.
type Bridge struct {
	launcher Launcher
	bus      *event.Bus
	logger   *logging.Logger

	timeout time.Duration // per-request
	backoff time.Duration // fixed restart delay

	mu             sync.Mutex
	state          State
	proc           Process
	generation     int
	nextID         uint64
	pending        map[string]*pendingRequest
	stopped        bool
	restartPending bool
	restartTimer   *time.Timer

	// wmu serializes line writes to the agent's stdin so concurrent
	// sends cannot interleave partial lines.
	wmu sync.Mutex
}

// New creates a Bridge. The launcher and bus must be non-nil; passing nil
// will panic early to surface wiring bugs immediately.
func New(launcher Launcher, bus *event.Bus, opts ...Option) *Bridge {
	if launcher == nil {
		panic("bridge: Launcher must not be nil")
	}
	if bus == nil {
		panic("bridge: event.Bus must not be nil")
	}

	cfg := &config{
		timeout: defaultRequestTimeout,
		backoff: defaultRestartBackoff,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = defaultRequestTimeout
	}
	if cfg.backoff <= 0 {
		cfg.backoff = defaultRestartBackoff
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	return &Bridge{
		launcher: launcher,
		bus:      bus,
		logger:   cfg.logger.WithComponent("bridge"),
		timeout:  cfg.timeout,
		backoff:  cfg.backoff,
		pending:  make(map[string]*pendingRequest),
	}
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start launches the agent process if it is not already running. Send
// starts the process lazily, so calling Start is optional; it exists so
// the application can bring the agent up ahead of the first request.
func (b *Bridge) Start(ctx context.Context) error {
	return b.ensureStarted(ctx)
}

// Stop terminates the agent process and rejects all pending requests.
// The bridge will not restart after Stop; this is the terminal transition
// used at application shutdown.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.state = StateStopped
	if b.restartTimer != nil {
		b.restartTimer.Stop()
		b.restartTimer = nil
	}
	b.restartPending = false
	proc := b.proc
	b.proc = nil
	rejected := b.takeAllPendingLocked()
	b.mu.Unlock()

	b.rejectAll(rejected, fmt.Errorf("%w: bridge stopped", ErrProcessExited))

	if proc != nil {
		if err := proc.Kill(); err != nil {
			b.logger.Warn("failed to kill agent process", "error", err)
		}
	}
	b.logger.Info("bridge stopped")
}

// Send writes one framed request and blocks until the matching response
// arrives, the request times out, the process exits, or ctx is cancelled.
// On success it returns the response's payload field.
//
// The agent process is started lazily if it is not running. Send never
// retries; a caller that sees an error must re-issue the request itself.
func (b *Bridge) Send(ctx context.Context, typ string, payload any) (json.RawMessage, error) {
	if err := b.ensureStarted(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.proc == nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: process not running", ErrTransportUnavailable)
	}
	proc := b.proc
	b.nextID++
	id := strconv.FormatUint(b.nextID, 10)

	p := &pendingRequest{
		id:   id,
		done: make(chan result, 1),
	}
	p.timer = time.AfterFunc(b.timeout, func() {
		b.complete(id, result{err: ErrTimeout})
	})
	b.pending[id] = p
	b.mu.Unlock()

	line, err := encodeRequest(id, typ, payload)
	if err != nil {
		b.abandon(id)
		return nil, err
	}

	b.wmu.Lock()
	_, werr := proc.Stdin().Write(line)
	b.wmu.Unlock()
	if werr != nil {
		b.abandon(id)
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, werr)
	}

	b.logger.Debug("request sent", "request_id", id, "type", typ)

	select {
	case res := <-p.done:
		return res.payload, res.err
	case <-ctx.Done():
		b.abandon(id)
		return nil, ctx.Err()
	}
}

// ensureStarted launches the agent process if none is running. The launch
// happens under the bridge mutex, which is what guarantees concurrent
// sends observe exactly one subprocess.
func (b *Bridge) ensureStarted(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return fmt.Errorf("%w: bridge stopped", ErrTransportUnavailable)
	}
	if b.proc != nil {
		return nil
	}

	b.state = StateStarting
	proc, err := b.launcher.Launch(ctx)
	if err != nil {
		b.state = StateErrored
		b.scheduleRestartLocked()
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	b.generation++
	gen := b.generation
	b.proc = proc
	b.state = StateRunning

	go b.readLoop(proc, gen)
	go b.stderrLoop(proc)
	go b.waitLoop(proc, gen)

	b.logger.Info("agent process started", "generation", gen)
	return nil
}

// readLoop consumes framed messages from one process generation's stdout
// until the stream closes.
func (b *Bridge) readLoop(proc Process, gen int) {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		b.handleLine(gen, scanner.Bytes())
	}
	if err := scanner.Err(); err != nil && err != io.ErrClosedPipe {
		b.logger.Debug("agent stdout closed", "generation", gen, "error", err)
	}
}

// handleLine classifies and dispatches one complete line from the agent.
// A line that fails to parse is reported as a diagnostic and otherwise
// ignored; it never takes the bridge down.
func (b *Bridge) handleLine(gen int, raw []byte) {
	msg, err := decodeInbound(raw)
	if err != nil {
		b.reportParseError(raw, err.Error())
		return
	}

	switch {
	case msg.Type == "ready" && msg.ID == "":
		b.logger.Info("agent ready", "generation", gen)
		b.bus.Publish(event.NewBackendReadyEvent(gen))

	case msg.ID != "" && msg.OK != nil:
		if *msg.OK {
			b.complete(msg.ID, result{payload: msg.Payload})
		} else {
			b.complete(msg.ID, result{err: &BackendError{Message: msg.Error}})
		}

	default:
		b.reportParseError(raw, "message is neither a response nor a known event")
	}
}

func (b *Bridge) reportParseError(raw []byte, reason string) {
	line := string(raw)
	b.logger.Warn("unparseable agent message", "line", line, "reason", reason)
	b.bus.Publish(event.NewBackendParseErrorEvent(line, reason))
}

// stderrLoop forwards the agent's stderr verbatim as log events.
func (b *Bridge) stderrLoop(proc Process) {
	scanner := bufio.NewScanner(proc.Stderr())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		b.logger.Debug("agent stderr", "line", line)
		b.bus.Publish(event.NewBackendLogEvent(line))
	}
}

// waitLoop blocks on process exit and drives the restart state machine.
func (b *Bridge) waitLoop(proc Process, gen int) {
	waitErr := proc.Wait()

	b.mu.Lock()
	if b.generation != gen || b.proc == nil {
		// A newer generation already replaced this one.
		b.mu.Unlock()
		return
	}

	// Reject every pending request before the handle reference is
	// cleared; callers must never observe a live handle with dead
	// requests.
	rejected := b.takeAllPendingLocked()
	b.proc = nil
	if waitErr == nil {
		b.state = StateExited
	} else {
		b.state = StateErrored
	}
	stopped := b.stopped
	if !stopped {
		b.scheduleRestartLocked()
	}
	b.mu.Unlock()

	rejectErr := fmt.Errorf("%w (generation %d)", ErrProcessExited, gen)
	b.rejectAll(rejected, rejectErr)

	code := exitCode(waitErr)
	errText := ""
	if waitErr != nil {
		errText = waitErr.Error()
	}
	b.logger.Warn("agent process exited",
		"generation", gen, "code", code, "error", errText, "rejected", len(rejected))
	b.bus.Publish(event.NewBackendExitedEvent(gen, code, errText))
}

// scheduleRestartLocked arms the fixed-delay restart timer. The delay
// never grows and there is no retry ceiling: the agent is an
// always-available background service. Callers must hold b.mu.
func (b *Bridge) scheduleRestartLocked() {
	if b.restartPending || b.stopped {
		return
	}
	b.restartPending = true
	b.restartTimer = time.AfterFunc(b.backoff, b.restart)
}

func (b *Bridge) restart() {
	b.mu.Lock()
	b.restartPending = false
	if b.stopped || b.proc != nil {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if err := b.ensureStarted(context.Background()); err != nil {
		// ensureStarted re-armed the restart timer; just log.
		b.logger.Warn("agent restart failed", "error", err)
	}
}

// complete resolves the pending request with the given id, if it is still
// pending. Removal from the map is what makes completion exactly-once.
func (b *Bridge) complete(id string, res result) {
	p := b.take(id)
	if p == nil {
		// Late response after timeout/exit, or a response to an id we
		// never issued. Either way it is not an error.
		b.logger.Debug("response for unknown request", "request_id", id)
		return
	}
	p.timer.Stop()
	p.done <- res
}

// abandon removes a pending request without delivering a result. Used when
// the Send call itself is returning an error (write failure, cancellation).
func (b *Bridge) abandon(id string) {
	if p := b.take(id); p != nil {
		p.timer.Stop()
	}
}

// take atomically removes and returns the pending request for id, or nil.
func (b *Bridge) take(id string) *pendingRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending[id]
	if p != nil {
		delete(b.pending, id)
	}
	return p
}

// takeAllPendingLocked empties the pending map. Callers must hold b.mu.
func (b *Bridge) takeAllPendingLocked() []*pendingRequest {
	if len(b.pending) == 0 {
		return nil
	}
	all := make([]*pendingRequest, 0, len(b.pending))
	for _, p := range b.pending {
		all = append(all, p)
	}
	b.pending = make(map[string]*pendingRequest)
	return all
}

func (b *Bridge) rejectAll(pending []*pendingRequest, err error) {
	for _, p := range pending {
		p.timer.Stop()
		p.done <- result{err: err}
	}
}
